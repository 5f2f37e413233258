package scraper

import (
	"strings"
	"time"
)

// JSONLDSocialMediaPosting is the structured data X embeds in status pages.
// Replies appear as nested comments.
type JSONLDSocialMediaPosting struct {
	Context              string                     `json:"@context"`
	Type                 string                     `json:"@type"` // "SocialMediaPosting" or "Comment"
	Identifier           string                     `json:"identifier"`
	URL                  string                     `json:"url"`
	ArticleBody          string                     `json:"articleBody"`
	Text                 string                     `json:"text"`
	DatePublished        time.Time                  `json:"datePublished"`
	Author               JSONLDPerson               `json:"author"`
	InteractionStatistic []JSONLDInteraction        `json:"interactionStatistic"`
	Comment              []JSONLDSocialMediaPosting `json:"comment"`
	SharedContent        *JSONLDSocialMediaPosting  `json:"sharedContent,omitempty"`
}

type JSONLDPerson struct {
	Type           string `json:"@type"`
	Name           string `json:"name"`
	AdditionalName string `json:"additionalName"` // handle without @
	URL            string `json:"url"`
}

type JSONLDInteraction struct {
	InteractionType      string `json:"interactionType"` // schema.org URL, e.g. https://schema.org/LikeAction
	UserInteractionCount int    `json:"userInteractionCount"`
}

func (p *JSONLDSocialMediaPosting) body() string {
	if p.ArticleBody != "" {
		return p.ArticleBody
	}
	return p.Text
}

// count returns the interaction counter whose type ends with action, such
// as "LikeAction".
func (p *JSONLDSocialMediaPosting) count(action string) int {
	for _, s := range p.InteractionStatistic {
		if strings.HasSuffix(s.InteractionType, action) {
			return s.UserInteractionCount
		}
	}
	return 0
}

package processor

import (
	"github.com/pauljones0/x-parser/internal/ai"
	"github.com/pauljones0/x-parser/internal/dedup"
	"github.com/pauljones0/x-parser/internal/notifier"
	"github.com/pauljones0/x-parser/internal/scraper"
	"github.com/pauljones0/x-parser/internal/storage"
	"github.com/pauljones0/x-parser/internal/xclient"
)

// The concrete clients wired in cmd/server.
var (
	_ TweetStore = (storage.Store)(nil)
	_ Source     = (*xclient.Client)(nil)
	_ PageSource = (*scraper.Client)(nil)
	_ Analyzer   = (*ai.Client)(nil)
	_ SeenSet    = (*dedup.Deduplicator)(nil)
	_ Notifier   = (*notifier.Client)(nil)
)

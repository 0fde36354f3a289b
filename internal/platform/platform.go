// Package platform builds the community site adapters by name.
package platform

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/platform/bobae"
	"github.com/JakeFAU/carbuzz/internal/platform/clien"
	"github.com/JakeFAU/carbuzz/internal/platform/dcinside"
	"github.com/JakeFAU/carbuzz/internal/platform/fmkorea"
)

// ErrUnknownPlatform is returned for names without an adapter.
var ErrUnknownPlatform = errors.New("unknown platform")

// Names lists the supported platforms in a stable order.
func Names() []string {
	return []string{crawler.SiteBobae, crawler.SiteClien, crawler.SiteDCInside, crawler.SiteFMKorea}
}

// New returns the adapter for name. headless is ignored by bobae, whose search is a form post.
func New(name string, loc *time.Location, headless bool) (crawler.Platform, error) {
	switch name {
	case crawler.SiteBobae:
		return bobae.New(loc), nil
	case crawler.SiteClien:
		return clien.New(loc, headless), nil
	case crawler.SiteDCInside:
		return dcinside.New(loc, headless), nil
	case crawler.SiteFMKorea:
		return fmkorea.New(loc, headless), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
}

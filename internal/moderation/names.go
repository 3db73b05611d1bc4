// Package moderation screens user-supplied text that is shown to other users,
// such as the sender name carried on a penpal request.
package moderation

import (
	"regexp"

	"github.com/globetalk/matchmaking/internal/apperr"
)

// urlPattern matches http/https URLs, www. URLs and bare domains followed by
// a path. The path requirement keeps names like "dr.who" legal.
var urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

// ScreenSenderName rejects a sender display name that carries a link, since
// it is shown verbatim to the recipient. Returns apperr.ErrInvalidArgument.
func ScreenSenderName(name string) error {
	if urlPattern.MatchString(name) {
		return apperr.Invalid("display name must not contain a URL")
	}
	return nil
}

package prefilter

import (
	"regexp"
	"strings"
)

var (
	replyHeaderRe = regexp.MustCompile(`(?i)^on\b.*\bwrote:\s*$`)
	signOffRe     = regexp.MustCompile(`(?i)^(thanks|thank you|many thanks|regards|best regards|kind regards|best|cheers|sent from my)\b`)
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
)

// maxSignOffLine bounds how long a sign-off line may be; longer lines are
// treated as content ("Thanks, but the VPN still drops every hour").
const maxSignOffLine = 40

// CleanText strips the quoted reply tail and the signature from an email
// body. Everything from the first reply header or sign-off line onwards is
// dropped, quoted lines are removed, and runs of blank lines are squeezed.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		t := strings.TrimSpace(line)
		if replyHeaderRe.MatchString(t) {
			break
		}
		if i > 0 && len(t) <= maxSignOffLine && signOffRe.MatchString(t) {
			break
		}
		if strings.HasPrefix(t, ">") {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t"))
	}
	cleaned := blankRunsRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(cleaned)
}

package agent

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	finalBlock = regexp.MustCompile(`(?s)<final>(.*?)</final>`)
)

// CleanReply removes <think> reasoning blocks and unwraps <final> blocks
func CleanReply(reply string) string {
	reply = strings.TrimSpace(thinkBlock.ReplaceAllString(reply, ""))
	reply = strings.TrimSpace(finalBlock.ReplaceAllString(reply, "$1"))
	return reply
}

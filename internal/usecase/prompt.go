package usecase

import (
	"fmt"
	"strings"
)

func refinementPrompt(requirements string) string {
	return "Interpret the following requirements for a codebase: \n" + requirements
}

func crossReferencePrompt(refined, index string) string {
	return "Based on the following requirements and project index, prepare a structured request for code transformation:\n" +
		"Requirements:\n" + refined + "\n\nProject Index:\n" + index
}

// fenced wraps s in a markdown code fence long enough that backticks inside
// s cannot close it.
func fenced(lang, s string) string {
	fence := "```"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	return fmt.Sprintf("%s%s\n%s\n%s", fence, lang, strings.TrimRight(s, "\n"), fence)
}

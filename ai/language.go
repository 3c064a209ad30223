package ai

import "github.com/abadojack/whatlanggo"

// DetectLanguage returns the ISO 639-1 code of text, empty when detection is unreliable.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

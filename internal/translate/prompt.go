package translate

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns the English name of a BCP 47 tag, or the tag itself
// when it cannot be parsed.
func LanguageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}

func systemPrompt(source, target string) string {
	return fmt.Sprintf(`You are a professional translator for academic and technical documents.
Translate the text extracted from a PDF page from %s to %s.

RULES:
1. Output only the translation, with no explanations or notes.
2. Keep mathematical formulas, symbols, numbers and identifiers exactly as they are.
3. Use the punctuation conventions of %s.
4. Keep line breaks where the input has them.`, LanguageName(source), LanguageName(target), LanguageName(target))
}

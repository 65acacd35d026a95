package textnorm

import (
	"regexp"
	"strings"
)

// vietnameseDiacritics holds the precomposed Vietnamese letters with marks.
const vietnameseDiacritics = "ÀÁẢÃẠÂẦẤẨẪẬĂẰẮẲẴẶÈÉẺẼẸÊỀẾỂỄỆÌÍỈĨỊÒÓỎÕỌÔỒỐỔỖỘƠỜỚỞỠỢÙÚỦŨỤƯỪỨỬỮỰỲÝỶỸỴĐ" +
	"àáảãạâầấẩẫậăằắẳẵặèéẻẽẹêềếểễệìíỉĩịòóỏõọôồốổỗộơờớởỡợùúủũụưừứửữựỳýỷỹỵđ"

var (
	htmlComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	figureCaption  = regexp.MustCompile(`(?m)^[ \t]*Hình\s*\d+\..*$`)
	ocrFootnote    = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]+[A-ZÀ-Ỹ].*$`)
	abstractHeader = regexp.MustCompile(`^\s*##\s*TÓM\s+TẮT\b`)
	tailHeaders    = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^[ \t]*#{0,6}[ \t]*L\s*Ờ\s*I\s*C\s*Ả\s*M\s*Ơ\s*N[ \t:.]*$`),
		regexp.MustCompile(`(?im)^[ \t]*#{0,6}[ \t]*T\s*À\s*I\s*L\s*I\s*Ệ\s*U\s*T\s*H\s*A\s*M\s*K\s*H\s*Ả\s*O[ \t:.]*$`),
	}
)

// StripAcademicNoise removes parts of converted research papers that hurt
// retrieval: the front matter between the title and the abstract, figure
// captions, HTML comments, OCR footnote lines and everything from the
// acknowledgements or references heading to the end. Input must be NFC.
func StripAcademicNoise(s string) string {
	for htmlComment.MatchString(s) {
		s = htmlComment.ReplaceAllString(s, "")
	}
	s = keepTitleAndAbstract(s)
	s = cutTail(s)
	s = figureCaption.ReplaceAllString(s, "")
	s = ocrFootnote.ReplaceAllString(s, "")
	return s
}

// keepTitleAndAbstract keeps the first "##" heading carrying Vietnamese
// diacritics and everything from the "## TÓM TẮT" heading onwards. Text
// without an abstract heading is returned unchanged.
func keepTitleAndAbstract(s string) string {
	lines := strings.Split(s, "\n")

	title, abstract := -1, -1
	for i, line := range lines {
		if title < 0 && isVietnameseHeader(line) {
			title = i
		}
		if abstract < 0 && abstractHeader.MatchString(line) {
			abstract = i
		}
	}

	switch {
	case abstract < 0:
		return s
	case title < 0 || title >= abstract:
		return strings.Join(lines[abstract:], "\n")
	default:
		kept := make([]string, 0, len(lines)-abstract+2)
		kept = append(kept, strings.TrimSpace(lines[title]), "")
		kept = append(kept, lines[abstract:]...)
		return strings.Join(kept, "\n")
	}
}

func isVietnameseHeader(line string) bool {
	if !strings.HasPrefix(strings.TrimSpace(line), "##") {
		return false
	}
	return strings.ContainsAny(line, vietnameseDiacritics)
}

// cutTail drops everything from the earliest acknowledgements or references
// heading.
func cutTail(s string) string {
	cut := -1
	for _, re := range tailHeaders {
		if loc := re.FindStringIndex(s); loc != nil && (cut < 0 || loc[0] < cut) {
			cut = loc[0]
		}
	}
	if cut < 0 {
		return s
	}
	return s[:cut]
}

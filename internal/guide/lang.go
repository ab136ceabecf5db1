package guide

import "strings"

// iso639_2to1 maps ISO 639-2 codes (bibliographic and terminological
// variants) to their 639-1 forms for the languages the guide providers
// actually emit.
var iso639_2to1 = map[string]string{
	"alb": "sq", "sqi": "sq",
	"ara": "ar",
	"arm": "hy", "hye": "hy",
	"baq": "eu", "eus": "eu",
	"bel": "be",
	"bos": "bs",
	"bul": "bg",
	"cat": "ca",
	"chi": "zh", "zho": "zh",
	"cze": "cs", "ces": "cs",
	"dan": "da",
	"dut": "nl", "nld": "nl",
	"eng": "en",
	"est": "et",
	"fin": "fi",
	"fre": "fr", "fra": "fr",
	"geo": "ka", "kat": "ka",
	"ger": "de", "deu": "de",
	"gre": "el", "ell": "el",
	"heb": "he",
	"hin": "hi",
	"hrv": "hr",
	"hun": "hu",
	"ice": "is", "isl": "is",
	"ind": "id",
	"ita": "it",
	"jpn": "ja",
	"kor": "ko",
	"lav": "lv",
	"lit": "lt",
	"mac": "mk", "mkd": "mk",
	"mao": "mi", "mri": "mi",
	"may": "ms", "msa": "ms",
	"nor": "no",
	"per": "fa", "fas": "fa",
	"pol": "pl",
	"por": "pt",
	"rum": "ro", "ron": "ro",
	"rus": "ru",
	"slo": "sk", "slk": "sk",
	"slv": "sl",
	"spa": "es",
	"srp": "sr",
	"swe": "sv",
	"tha": "th",
	"tur": "tr",
	"ukr": "uk",
	"vie": "vi",
	"wel": "cy", "cym": "cy",
}

// iso639_1 converts a provider language code to its two-letter form.
// "zxx" (no linguistic content) and anything unmapped default to "en".
func iso639_1(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "zxx" {
		return "en"
	}
	if two, ok := iso639_2to1[code]; ok {
		return two
	}
	return "en"
}

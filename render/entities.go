package render

// Named entities commonly found in chapter markup. XHTML documents rarely
// carry the DTD the references come from, so the parser needs them spelled
// out; anything not listed still passes through under permissive parsing.
var htmlNamedEntities = map[string]string{
	"nbsp":   " ",
	"shy":    "­",
	"copy":   "©",
	"reg":    "®",
	"trade":  "™",
	"sect":   "§",
	"para":   "¶",
	"middot": "·",
	"laquo":  "«",
	"raquo":  "»",
	"ldquo":  "“",
	"rdquo":  "”",
	"lsquo":  "‘",
	"rsquo":  "’",
	"ndash":  "–",
	"mdash":  "—",
	"hellip": "…",
	"dagger": "†",
	"Dagger": "‡",
	"bull":   "•",
	"prime":  "′",
	"Prime":  "″",
	"minus":  "−",
	"times":  "×",
	"divide": "÷",
	"plusmn": "±",
	"deg":    "°",
	"micro":  "µ",
	"frac12": "½",
	"frac14": "¼",
	"frac34": "¾",
	"euro":   "€",
	"pound":  "£",
	"cent":   "¢",
	"yen":    "¥",
	"agrave": "à",
	"eacute": "é",
	"egrave": "è",
	"ecirc":  "ê",
	"uuml":   "ü",
	"ouml":   "ö",
	"auml":   "ä",
	"szlig":  "ß",
	"ccedil": "ç",
	"ntilde": "ñ",
}

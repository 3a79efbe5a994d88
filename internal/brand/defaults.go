package brand

// Built-in brand ids.
const (
	OneTouch    = 1
	Satellit    = 2
	AccuChek    = 3
	Contour     = 4
	FreeStyle   = 5
	Bionime     = 6
	ICheck      = 7
	Diacont     = 8
	Dexcom      = 9
	Medtronic   = 10
	Omnipod     = 11
	NovoNordisk = 12
	Longevita   = 13
	Wellion     = 14
)

// DefaultTables returns the built-in tables used when no trained file is
// configured. Patterns run against unified text, so they only need
// lowercase letters, digits and single spaces.
func DefaultTables() Tables {
	return Tables{
		Words:    buildBrandWords(),
		Patterns: buildBrandPatterns(),
		Names:    buildBrandNames(),
	}
}

func buildBrandWords() map[string]int {
	return map[string]int{
		"onetouch":  OneTouch,
		"ванточ":    OneTouch,
		"сателлит":  Satellit,
		"satellit":  Satellit,
		"элта":      Satellit,
		"accuchek":  AccuChek,
		"аккучек":   AccuChek,
		"contour":   Contour,
		"контур":    Contour,
		"freestyle": FreeStyle,
		"фристайл":  FreeStyle,
		"bionime":   Bionime,
		"бионайм":   Bionime,
		"icheck":    ICheck,
		"айчек":     ICheck,
		"diacont":   Diacont,
		"диаконт":   Diacont,
		"dexcom":    Dexcom,
		"декском":   Dexcom,
		"medtronic": Medtronic,
		"медтроник": Medtronic,
		"omnipod":   Omnipod,
		"омнипод":   Omnipod,
		"novopen":   NovoNordisk,
		"новопен":   NovoNordisk,
		"novofine":  NovoNordisk,
		"новофайн":  NovoNordisk,
		"longevita": Longevita,
		"лонгевита": Longevita,
		"wellion":   Wellion,
		"веллион":   Wellion,
	}
}

func buildBrandPatterns() []PatternRule {
	return []PatternRule{
		{Pattern: `\baccu ?chek\b`, BrandID: AccuChek},
		{Pattern: `акк?у ?ч[еэ]к`, BrandID: AccuChek},
		{Pattern: `\bone ?touch\b`, BrandID: OneTouch},
		{Pattern: `ван ?т[ао]ч`, BrandID: OneTouch},
		{Pattern: `\bfree ?style\b`, BrandID: FreeStyle},
		{Pattern: `фри ?стайл`, BrandID: FreeStyle},
		{Pattern: `\bi ?check\b`, BrandID: ICheck},
		{Pattern: `\bnovo ?nordisk\b`, BrandID: NovoNordisk},
		{Pattern: `ново ?нордиск`, BrandID: NovoNordisk},
		{Pattern: `\bbayer contour\b`, BrandID: Contour},
		{Pattern: `\b(?:elta )?satellit(?:e)?\b`, BrandID: Satellit},
	}
}

func buildBrandNames() map[int]string {
	return map[int]string{
		OneTouch:    "OneTouch",
		Satellit:    "Сателлит",
		AccuChek:    "Accu-Chek",
		Contour:     "Contour",
		FreeStyle:   "FreeStyle",
		Bionime:     "Bionime",
		ICheck:      "iCheck",
		Diacont:     "Диаконт",
		Dexcom:      "Dexcom",
		Medtronic:   "Medtronic",
		Omnipod:     "Omnipod",
		NovoNordisk: "Novo Nordisk",
		Longevita:   "Longevita",
		Wellion:     "Wellion",
	}
}

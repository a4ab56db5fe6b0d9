package catalog

// Builtin returns the seed reference data for Saint Lucia exports: office,
// unit, package, currency and transport code lists, the common alias tables
// and the keyword classification table. Loaded reference files are merged on
// top of it.
func Builtin() Data {
	return Data{
		Countries: map[string]string{
			"USA":            "US",
			"United States":  "US",
			"America":        "US",
			"Canada":         "CA",
			"UK":             "GB",
			"United Kingdom": "GB",
			"England":        "GB",
			"Great Britain":  "GB",
			"France":         "FR",
			"Germany":        "DE",
			"Italy":          "IT",
			"Spain":          "ES",
			"China":          "CN",
			"India":          "IN",
			"Barbados":       "BB",
			"Martinique":     "MQ",
			"Saint Lucia":    "LC",
			"St Lucia":       "LC",
			"Saint Vincent":  "VC",
			"St Vincent":     "VC",
			"Trinidad":       "TT",
		},
		Offices: map[string]string{
			"UVF":        "LCHB",
			"Hewanorra":  "LCHB",
			"SLU":        "LCVGC",
			"Vigie":      "LCVGC",
			"Castries":   "LCCAP",
			"Vieux Fort": "LCVFP",
		},
		Carriers: map[string]string{
			"American":        "AA",
			"Delta":           "DL",
			"British":         "BA",
			"Virgin":          "VS",
			"Caribbean":       "BW",
			"JetBlue":         "B6",
			"United":          "UA",
			"Air Canada":      "AC",
			"Princess":        "VC",
			"Carnival":        "VC",
			"Royal Caribbean": "VC",
			"Celebrity":       "VC",
			"Norwegian":       "VC",
		},
		Units:          []string{"NMB", "KGM", "LTR", "MTR", "SQM", "PR", "DZN"},
		PackageTypes:   []string{"PE", "BX", "CT", "PK", "BG"},
		Currencies:     []string{"XCD", "USD", "EUR", "GBP", "CAD"},
		TransportModes: []string{"VC", "AA", "DL", "BA", "VS", "BW", "B6", "UA", "AC"},
		OfficeCodes:    []string{"LCVFP", "LCHB", "LCCAP", "LCVGC"},
		Keywords: []KeywordRule{
			{Keyword: "HAT", HSCode: "65040000"},
			{Keyword: "CAP", HSCode: "65040000"},
			{Keyword: "VISOR", HSCode: "65040000"},
			{Keyword: "SHIRT", HSCode: "62053000"},
			{Keyword: "POLO", HSCode: "62053000"},
			{Keyword: "PANT", HSCode: "62034990"},
			{Keyword: "PANTS", HSCode: "62034990"},
			{Keyword: "SHORT", HSCode: "62034990"},
			{Keyword: "SHORTS", HSCode: "62034990"},
			{Keyword: "BERMUDA", HSCode: "62034990"},
			{Keyword: "SWIMSUIT", HSCode: "62111200"},
			{Keyword: "BIKINI", HSCode: "62111200"},
			{Keyword: "BATHING", HSCode: "62111200"},
			{Keyword: "RASHGUARD", HSCode: "62111200"},
			{Keyword: "BAG", HSCode: "42022900"},
			{Keyword: "CROSSBODY", HSCode: "42022900"},
			{Keyword: "CLUTCH", HSCode: "42022900"},
			{Keyword: "COSMETIC BAG", HSCode: "42023210"},
			{Keyword: "SANDAL", HSCode: "64052000"},
			{Keyword: "SANDALS", HSCode: "64052000"},
			{Keyword: "BRACELET", HSCode: "71179000"},
			{Keyword: "NECKLACE", HSCode: "71179000"},
			{Keyword: "EARRING", HSCode: "71179000"},
			{Keyword: "EARRINGS", HSCode: "71179000"},
			{Keyword: "RING", HSCode: "71179000"},
			{Keyword: "SCRUNCHIE", HSCode: "96159000"},
			{Keyword: "SARONG", HSCode: "62114300"},
			{Keyword: "PAREO", HSCode: "62114300"},
			{Keyword: "DRESS", HSCode: "62044900"},
			{Keyword: "TUNIC", HSCode: "62064000"},
			{Keyword: "TOP", HSCode: "62064000"},
			{Keyword: "BOTTOM", HSCode: "62089290"},
		},
		DocumentOffices: map[string]string{
			"42": "LCCAP",
			"65": "LCCAP",
			"71": "LCCAP",
			"62": "LCVGC",
			"64": "LCVFP",
		},
	}
}

// Merge overlays data on base. Products are appended after the base
// products, alias tables are unioned with overlay entries winning, code
// lists are unioned and keyword rules from the overlay replace the base
// rules when any are given.
func Merge(base, overlay Data) Data {
	out := Data{
		Products:        append(append([]Entry{}, base.Products...), overlay.Products...),
		Countries:       mergeMaps(base.Countries, overlay.Countries),
		Offices:         mergeMaps(base.Offices, overlay.Offices),
		Carriers:        mergeMaps(base.Carriers, overlay.Carriers),
		HSCodes:         union(base.HSCodes, overlay.HSCodes),
		Units:           union(base.Units, overlay.Units),
		PackageTypes:    union(base.PackageTypes, overlay.PackageTypes),
		Currencies:      union(base.Currencies, overlay.Currencies),
		TransportModes:  union(base.TransportModes, overlay.TransportModes),
		OfficeCodes:     union(base.OfficeCodes, overlay.OfficeCodes),
		Keywords:        base.Keywords,
		DocumentOffices: mergeMaps(base.DocumentOffices, overlay.DocumentOffices),
	}
	if len(overlay.Keywords) > 0 {
		out.Keywords = overlay.Keywords
	}
	return out
}

func mergeMaps(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

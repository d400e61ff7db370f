package resolver

import "strings"

// The normalizer is pure: identical input yields bit-identical output, with
// no clock or randomness. Unknown names, units and routes pass through
// rather than failing, so it never returns an error.

// aliasMap maps brand and shorthand names to canonical drug names. Bundled
// and immutable; extending it is a release, not a runtime change.
var aliasMap = map[string]string{
	// NSAIDs
	"rimadyl":    "carprofen",
	"novox":      "carprofen",
	"quellin":    "carprofen",
	"metacam":    "meloxicam",
	"loxicom":    "meloxicam",
	"previcox":   "firocoxib",
	"deramaxx":   "deracoxib",
	"galliprant": "grapiprant",
	"onsior":     "robenacoxib",

	// Sedation and anesthesia
	"ace":        "acepromazine",
	"promace":    "acepromazine",
	"atravet":    "acepromazine",
	"propoflo":   "propofol",
	"telazol":    "tiletamine-zolazepam",
	"domitor":    "medetomidine",
	"dexdomitor": "dexmedetomidine",
	"antisedan":  "atipamezole",
	"torb":       "butorphanol",
	"torbugesic": "butorphanol",

	// Antibiotics
	"clavamox":  "amoxicillin-clavulanate",
	"augmentin": "amoxicillin-clavulanate",
	"baytril":   "enrofloxacin",
	"zeniquin":  "marbofloxacin",
	"convenia":  "cefovecin",
	"simplicef": "cefpodoxime",
	"orbax":     "orbifloxacin",

	// Steroids
	"dex":         "dexamethasone",
	"depo":        "methylprednisolone",
	"depo-medrol": "methylprednisolone",
	"pred":        "prednisone",
	"vetalog":     "triamcinolone",

	// Parasiticides
	"heartgard":   "ivermectin",
	"ivomec":      "ivermectin",
	"interceptor": "milbemycin",
	"sentinel":    "milbemycin-lufenuron",
	"revolution":  "selamectin",
	"strongid":    "pyrantel",
	"panacur":     "fenbendazole",
	"drontal":     "praziquantel-pyrantel",

	// Cardiac
	"vetmedin": "pimobendan",
	"enacard":  "enalapril",
	"vasotec":  "enalapril",
	"salix":    "furosemide",
	"lasix":    "furosemide",

	// GI
	"cerenia":    "maropitant",
	"reglan":     "metoclopramide",
	"pepcid":     "famotidine",
	"zantac":     "ranitidine",
	"prilosec":   "omeprazole",
	"gastrogard": "omeprazole",
	"carafate":   "sucralfate",

	// Anticonvulsants
	"keppra":            "levetiracetam",
	"zonegran":          "zonisamide",
	"phenobarb":         "phenobarbital",
	"potassium bromide": "potassium-bromide",
	"kbr":               "potassium-bromide",

	// Endocrine
	"soloxine":   "levothyroxine",
	"thyro-tabs": "levothyroxine",
	"tapazole":   "methimazole",
	"felimazole": "methimazole",

	// Behavioral
	"clomicalm": "clomipramine",
	"reconcile": "fluoxetine",
	"prozac":    "fluoxetine",
	"sileo":     "dexmedetomidine",
	"trazadone": "trazodone",
}

// unitMap maps spoken unit spellings to (canonical unit, multiplier).
var unitMap = map[string]struct {
	unit string
	mult float64
}{
	// Volume
	"cc":     {"mL", 1},
	"ml":     {"mL", 1},
	"l":      {"mL", 1000},
	"liter":  {"mL", 1000},
	"liters": {"mL", 1000},

	// Mass
	"mg":         {"mg", 1},
	"mcg":        {"mg", 0.001},
	"ug":         {"mg", 0.001},
	"µg":         {"mg", 0.001},
	"microgram":  {"mg", 0.001},
	"micrograms": {"mg", 0.001},
	"g":          {"mg", 1000},
	"gram":       {"mg", 1000},
	"grams":      {"mg", 1000},
	"kg":         {"mg", 1000000},

	// Counted
	"unit":    {"units", 1},
	"units":   {"units", 1},
	"iu":      {"IU", 1},
	"tab":     {"tablets", 1},
	"tabs":    {"tablets", 1},
	"tablet":  {"tablets", 1},
	"tablets": {"tablets", 1},
	"cap":     {"capsules", 1},
	"caps":    {"capsules", 1},
	"capsule": {"capsules", 1},
}

// routeMap maps spoken routes to the canonical set {PO, SQ, IM, IV, TOP}.
var routeMap = map[string]string{
	"po":       "PO",
	"oral":     "PO",
	"orally":   "PO",
	"by mouth": "PO",
	"per os":   "PO",

	"iv":            "IV",
	"i.v.":          "IV",
	"intravenous":   "IV",
	"intravenously": "IV",

	"im":              "IM",
	"i.m.":            "IM",
	"intramuscular":   "IM",
	"intramuscularly": "IM",

	"sq":             "SQ",
	"sc":             "SQ",
	"subq":           "SQ",
	"sub-q":          "SQ",
	"subcutaneous":   "SQ",
	"subcutaneously": "SQ",

	"top":       "TOP",
	"topical":   "TOP",
	"topically": "TOP",
}

// Normalize canonicalizes a mention: alias expansion, unit conversion, route
// canonicalization, species lower-casing.
func Normalize(m DrugMention) NormalizedMention {
	raw := cleanName(m.Text)

	out := NormalizedMention{Name: raw, RawName: raw}
	if canonical, ok := aliasMap[raw]; ok {
		out.Name = canonical
	}

	if m.Dose != nil && *m.Dose > 0 {
		dose := *m.Dose
		if m.Unit != nil {
			if conv, ok := unitMap[strings.ToLower(strings.TrimSpace(*m.Unit))]; ok {
				d := dose * conv.mult
				u := conv.unit
				out.Dose = &d
				out.Unit = &u
			} else {
				// Unknown unit: keep the number, drop the unit.
				out.Dose = &dose
			}
		} else {
			out.Dose = &dose
		}
	}

	if m.Route != nil {
		if canonical, ok := routeMap[strings.ToLower(strings.TrimSpace(*m.Route))]; ok {
			r := canonical
			out.Route = &r
		}
	}

	if m.Species != nil {
		s := strings.ToLower(strings.TrimSpace(*m.Species))
		if s != "" {
			out.Species = &s
		}
	}
	return out
}

// cleanName lower-cases, strips punctuation (keeping hyphens, which appear
// in canonical names) and collapses whitespace.
func cleanName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

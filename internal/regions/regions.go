package regions

import "rfid_session_go/sdk"

// Info describes one UHF regulatory plan a reader can be set to.
type Info struct {
	Region sdk.Region
	Name   string
	Band   string
}

var Catalog = []Info{
	{Region: sdk.RegionNA, Name: "North America", Band: "902-928 MHz"},
	{Region: sdk.RegionNA2, Name: "North America (reduced)", Band: "902-928 MHz"},
	{Region: sdk.RegionNA3, Name: "North America (narrow)", Band: "902-904 MHz"},
	{Region: sdk.RegionNA4, Name: "North America (Vega)", Band: "902-928 MHz"},
	{Region: sdk.RegionEU, Name: "Europe", Band: "865-868 MHz"},
	{Region: sdk.RegionEU2, Name: "Europe (single channel)", Band: "865.7 MHz"},
	{Region: sdk.RegionEU3, Name: "Europe (4 channel)", Band: "865.7-867.5 MHz"},
	{Region: sdk.RegionEU4, Name: "Europe (upper band)", Band: "916.3-919.9 MHz"},
	{Region: sdk.RegionPRC, Name: "China", Band: "920-925 MHz"},
	{Region: sdk.RegionPRC2, Name: "China 840", Band: "840-845 MHz"},
	{Region: sdk.RegionJP, Name: "Japan", Band: "916.8-923.4 MHz"},
	{Region: sdk.RegionJP2, Name: "Japan (24 dBm)", Band: "916.8-920.8 MHz"},
	{Region: sdk.RegionJP3, Name: "Japan (LBT)", Band: "916.8-920.4 MHz"},
	{Region: sdk.RegionKR, Name: "Korea (legacy)", Band: "910-914 MHz"},
	{Region: sdk.RegionKR2, Name: "Korea", Band: "917-923.5 MHz"},
	{Region: sdk.RegionIN, Name: "India", Band: "865-867 MHz"},
	{Region: sdk.RegionAU, Name: "Australia", Band: "920-926 MHz"},
	{Region: sdk.RegionNZ, Name: "New Zealand", Band: "922-928 MHz"},
	{Region: sdk.RegionRU, Name: "Russia", Band: "866-868 MHz"},
	{Region: sdk.RegionSG, Name: "Singapore", Band: "920-925 MHz"},
	{Region: sdk.RegionMY, Name: "Malaysia", Band: "919-923 MHz"},
	{Region: sdk.RegionTH, Name: "Thailand", Band: "920-925 MHz"},
	{Region: sdk.RegionVN, Name: "Vietnam", Band: "920-923 MHz"},
	{Region: sdk.RegionID, Name: "Indonesia", Band: "923-925 MHz"},
	{Region: sdk.RegionPH, Name: "Philippines", Band: "918-920 MHz"},
	{Region: sdk.RegionTW, Name: "Taiwan", Band: "922-928 MHz"},
	{Region: sdk.RegionHK, Name: "Hong Kong", Band: "920-925 MHz"},
	{Region: sdk.RegionMO, Name: "Macau", Band: "920-925 MHz"},
	{Region: sdk.RegionAR, Name: "Argentina", Band: "902-928 MHz"},
	{Region: sdk.RegionBD, Name: "Bangladesh", Band: "925-927 MHz"},
	{Region: sdk.RegionIS, Name: "Israel", Band: "915-917 MHz"},
	{Region: sdk.RegionIS2, Name: "Israel (wide)", Band: "915-917 MHz"},
	{Region: sdk.RegionUniversal, Name: "Universal", Band: "865-928 MHz"},
	{Region: sdk.RegionOpen, Name: "Open", Band: "unrestricted"},
	{Region: sdk.RegionOpenExtended, Name: "Open (extended)", Band: "unrestricted"},
}

func Lookup(r sdk.Region) (Info, bool) {
	for _, info := range Catalog {
		if info.Region == r {
			return info, true
		}
	}
	return Info{}, false
}

// Band returns the frequency band for r, or "" when the plan is unknown.
func Band(r sdk.Region) string {
	info, ok := Lookup(r)
	if !ok {
		return ""
	}
	return info.Band
}

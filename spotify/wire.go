package spotify

// Wire types mirror the subset of the API payloads the connector reads.

type wireTrack struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Popularity int              `json:"popularity"`
	Artists    []wireTrackOwner `json:"artists"`
}

type wireTrackOwner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

type searchResponse struct {
	Tracks struct {
		Items []wireTrack `json:"items"`
	} `json:"tracks"`
}

type artistSearchResponse struct {
	Artists struct {
		Items []wireArtist `json:"items"`
	} `json:"artists"`
}

type relatedArtistsResponse struct {
	Artists []wireArtist `json:"artists"`
}

type topTracksResponse struct {
	Tracks []wireTrack `json:"tracks"`
}

type recommendationsResponse struct {
	Tracks []wireTrack `json:"tracks"`
}

type audioFeatures struct {
	Tempo float64 `json:"tempo"`
}

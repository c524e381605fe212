package deezer

// Wire types mirror the subset of the API payloads the connector reads.

type wireTrack struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Rank   int64  `json:"rank"`
	Artist struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type wireTrackFull struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Rank  int64   `json:"rank"`
	BPM   float64 `json:"bpm"`
	Album struct {
		ID int64 `json:"id"`
	} `json:"album"`
}

type wireAlbum struct {
	ID     int64 `json:"id"`
	Genres struct {
		Data []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	} `json:"genres"`
}

type wireArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type wireRadio struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type wireGenre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type trackListResponse struct {
	Data []wireTrack `json:"data"`
}

type artistListResponse struct {
	Data []wireArtist `json:"data"`
}

type radioListResponse struct {
	Data []wireRadio `json:"data"`
}

type genreListResponse struct {
	Data []wireGenre `json:"data"`
}

package metadata

// TMDBDiscoverResponse represents the response from the TMDB discover API
type TMDBDiscoverResponse struct {
	Page         int         `json:"page"`
	Results      []TMDBMovie `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

// TMDBMovie represents a movie in a TMDB result list
type TMDBMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"poster_path"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Popularity  float64 `json:"popularity"`
	GenreIDs    []int   `json:"genre_ids"`
}

// TMDBMovieDetails represents detailed movie information from TMDB.
// Pointer fields distinguish an absent or null key from an empty value.
type TMDBMovieDetails struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Overview    *string     `json:"overview"`
	PosterPath  *string     `json:"poster_path"`
	ReleaseDate *string     `json:"release_date"`
	Runtime     *int        `json:"runtime"`
	VoteAverage *float64    `json:"vote_average"`
	Genres      []TMDBGenre `json:"genres"`
	IMDbID      string      `json:"imdb_id"`
}

// TMDBGenre represents a movie genre
type TMDBGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TMDBGenreListResponse is the body of /genre/movie/list
type TMDBGenreListResponse struct {
	Genres []TMDBGenre `json:"genres"`
}

// DiscoverQuery selects movies for /discover/movie. Year takes precedence
// when both fields are set.
type DiscoverQuery struct {
	Year     int
	GenreIDs []int
}

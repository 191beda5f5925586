package dto

type HealthResponse struct {
	Status  string `json:"status" example:"healthy"`
	Service string `json:"service" example:"watcher"`
	Active  int    `json:"active_watches" example:"2"`
}

package dto

type UploadRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

type UploadResponse struct {
	Message       string   `json:"message"`
	Files         []string `json:"files,omitempty"`
	UploadTimeSec float64  `json:"upload_time_sec,omitempty"`
}

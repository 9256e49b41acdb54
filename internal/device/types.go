package device

// RawStatus mirrors the payload returned by /status and by each
// /status/stream event. Optional sections are pointers so that absence can
// be told apart from zero values. Backend-specific extras are ignored.
type RawStatus struct {
	Status         string         `json:"status"`
	Progress       *float64       `json:"progress"`
	Layer          *int           `json:"layer"`
	ElapsedSeconds *float64       `json:"elapsed_seconds"`
	PrintData      *PrintData     `json:"print_data"`
	PhysicalState  *PhysicalState `json:"physical_state"`
}

// PrintData carries per-job information while a print is loaded.
type PrintData struct {
	FileData     *FileData `json:"file_data"`
	LayerCount   *int      `json:"layer_count"`
	UsedMaterial *float64  `json:"used_material"`
}

// FileData identifies the file behind the active job.
type FileData struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	LocationCategory string `json:"location_category"`
}

// PhysicalState reports mechanical positions.
type PhysicalState struct {
	Z float64 `json:"z"`
}

// ThumbnailQuery configures /thumbnail requests.
type ThumbnailQuery struct {
	Location string
	Path     string
	Size     int
}

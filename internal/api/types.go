package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a download in a transport-friendly format.
type QueueItem struct {
	ID              int64         `json:"id"`
	Title           string        `json:"title"`
	Thumbnail       string        `json:"thumbnail,omitempty"`
	Status          string        `json:"status"`
	RangeStart      int           `json:"rangeStart,omitempty"`
	RangeEnd        int           `json:"rangeEnd,omitempty"`
	MediaID         string        `json:"mediaId,omitempty"`
	PageCount       int           `json:"pageCount"`
	Extensions      []string      `json:"extensions,omitempty"`
	Progress        QueueProgress `json:"progress"`
	BytesDownloaded int64         `json:"bytesDownloaded"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
	CompletedAt     string        `json:"completedAt,omitempty"`
}

// QueueProgress captures page progress for a download.
type QueueProgress struct {
	Pages   int     `json:"pages"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// JobStatus mirrors a scheduler job.
type JobStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Attempts   int    `json:"attempts"`
	LastResult string `json:"lastResult,omitempty"`
	LastRun    string `json:"lastRun,omitempty"`
	NextRun    string `json:"nextRun,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	DownloadDir  string         `json:"downloadDir"`
	QueueStats   map[string]int `json:"queueStats"`
	InMemory     int            `json:"inMemory"`
	PageCache    *PageCache     `json:"pageCache,omitempty"`
	Jobs         []JobStatus    `json:"jobs"`
}

// PageCache summarizes the on-disk page cache.
type PageCache struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Limit   int64 `json:"limit"`
}

// DownloadRequest asks the daemon to download a gallery or a page range of it.
type DownloadRequest struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	Title     string `json:"title,omitempty" validate:"max=512"`
	Thumbnail string `json:"thumbnail,omitempty" validate:"omitempty,url"`
	Start     int    `json:"start,omitempty" validate:"gte=0"`
	End       int    `json:"end,omitempty" validate:"gte=0"`
}

// DownloadResponse reports how the request was applied.
type DownloadResponse struct {
	ID     int64  `json:"id"`
	Result string `json:"result"`
}

// ExportRequest asks for a ZIP export of a completed gallery.
type ExportRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

// ExportResponse names the scheduled export job.
type ExportResponse struct {
	ID  int64  `json:"id"`
	Job string `json:"job"`
}

// ClearRequest removes finished rows from the queue.
type ClearRequest struct {
	Scope string `json:"scope" validate:"required,oneof=completed failed all"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

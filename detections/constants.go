package detections

const (
	DefaultInputSize     = 640
	DefaultMaxDetections = 300
	ConfThreshold        = 0.5
	RetryAttempts        = 3
	RetryDelayMs         = 100
	RowWidth             = 6
	UnknownLabel         = "unknown"
	InputName            = "images"
	OutputName           = "output0"
)

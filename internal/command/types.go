package command

// Request is the control-topic command envelope.
// Options is absent for actions that need none, such as stop without a task.
type Request struct {
	Action  string   `json:"action"`
	Options *Options `json:"options,omitempty"`
}

// Options carries the parameters of an upload command.
type Options struct {
	UploadType       string             `json:"upload_type,omitempty"`
	TaskID           string             `json:"task_id,omitempty"`
	RecursiveFolders []FolderConfig     `json:"recursive_folders,omitempty"`
	Files            []FileDetail       `json:"files,omitempty"`
	Compression      *CompressionConfig `json:"compression,omitempty"`
	FileFilters      []string           `json:"file_filters,omitempty"`
	UploadStrategy   string             `json:"upload_strategy,omitempty"`
}

// FolderConfig names one source folder and whether to descend into it.
type FolderConfig struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// FileDetail maps one source file to its upload destination.
type FileDetail struct {
	SourcePath      string `json:"source_path"`
	DestinationPath string `json:"destination_path"`
}

// CompressionConfig controls payload compression, quality 0 through 9.
type CompressionConfig struct {
	Enabled bool `json:"enabled"`
	Quality int  `json:"quality"`
}

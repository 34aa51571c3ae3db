package api

// getMetadataItem is the wire shape of one entry in /getSyncItems's
// "items" array — a tagged union of file and folder rows, matching
// original_source/src/ApiClient.cpp's getMetadata parsing.
type getMetadataItem struct {
	Type        string  `json:"type"`
	UUID        string  `json:"uuid"`
	Filename    string  `json:"filename"`
	Device      string  `json:"device"`
	Directory   string  `json:"directory"`
	Folder      string  `json:"folder"`
	Path        string  `json:"path"`
	Origin      string  `json:"origin"`
	Checksum    string  `json:"checksum"`
	Size        int64   `json:"size"`
	MTime       int64   `json:"mtime"`
	Version     int     `json:"version"`
	ConflictID  *string `json:"conflictId,omitempty"`
	CreatedAt   int64   `json:"created_at,omitempty"`
}

type getMetadataResponse struct {
	Items []getMetadataItem `json:"items"`
}

// uploadFileStat is the JSON side-channel of a multipart upload,
// matching ApiClient::uploadFile's "filestat" field.
type uploadFileStat struct {
	Filename   string   `json:"filename"`
	Directory  string   `json:"directory"`
	Device     string   `json:"device"`
	UUID       string   `json:"uuid"`
	Origin     string   `json:"origin"`
	Checksum   string   `json:"checksum"`
	Size       int64    `json:"size"`
	MTime      int64    `json:"mtime"`
	Username   string   `json:"username"`
	Version    int      `json:"version"`
	IsModified bool     `json:"isModified"`
	PathIDs    []string `json:"pathids"`
	FileType   string   `json:"type"`
}

type uploadFileResponse struct {
	ID string `json:"id"`
}

type deleteFileID struct {
	ID       string `json:"id"`
	Origin   string `json:"origin"`
	Dir      string `json:"dir"`
	Versions int    `json:"versions"`
	Path     string `json:"path"`
}

type deleteFilesRequest struct {
	Username    string         `json:"username"`
	Directories []string       `json:"directories"`
	FileIDs     []deleteFileID `json:"fileIds"`
}

type renameFileRequest struct {
	Data renameFileData `json:"data"`
}

type renameFileData struct {
	Type     string `json:"type"`
	Dir      string `json:"dir"`
	Device   string `json:"device"`
	Filename string `json:"filename"`
	To       string `json:"to"`
	Origin   string `json:"origin"`
	Username string `json:"username"`
}

type renameFolderRequest struct {
	OldPath  string `json:"oldPath"`
	NewPath  string `json:"newPath"`
	Username string `json:"username"`
}

// APIError is the shape of an error response, whether it arrives as a
// non-200 body or (per the reference server) a 200 with an "error"
// field.
type APIError struct {
	Error string `json:"error"`
}

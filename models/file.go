package models

type File struct {
	NodeMeta    `bson:",inline"`
	Size        int64  `bson:"size" json:"size"`
	StoragePath string `bson:"storage_path" json:"storage_path"`
	DownloadURL string `bson:"download_url" json:"download_url"`
}

func (f *File) Kind() NodeKind     { return KindFile }
func (f *File) Collection() string { return FilesCollection }
func (f *File) OwnPath() string    { return f.StoragePath }

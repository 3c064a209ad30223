package chat

import "time"

// FileUpload is the record returned by the external file service.
type FileUpload struct {
	ID         string    `json:"id" bson:"_id" validate:"required"`
	RoomID     RoomID    `json:"roomId" bson:"room_id"`
	Name       string    `json:"name" bson:"name" validate:"required,max=255"`
	MimeType   string    `json:"mimeType" bson:"mime_type"`
	Size       int64     `json:"size" bson:"size" validate:"gt=0"`
	URL        string    `json:"url" bson:"url" validate:"required,url"`
	UploadedBy string    `json:"uploadedBy" bson:"uploaded_by"`
	UploadedAt time.Time `json:"uploadedAt" bson:"uploaded_at"`
}

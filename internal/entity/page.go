package entity

// PageImage references one rendered page of a source document.
type PageImage struct {
	DocumentID string `json:"document_id"`
	PageIndex  int    `json:"page_index"`
	ImagePath  string `json:"image_path"`
}

// DocumentGroup is every page belonging to one source document, in page order.
type DocumentGroup struct {
	DocumentID string      `json:"document_id"`
	Pages      []PageImage `json:"pages"`
}

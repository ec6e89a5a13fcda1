package listing

// Header is the fixed column order of the output table.
var Header = []string{"product_id", "title", "description", "image_path"}

// Record is one accepted row of the output table.
type Record struct {
	ProductID   string `json:"product_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
}

func NewRecord(doc Document, imagePath string) Record {
	return Record{
		ProductID:   doc.ProductID(),
		Title:       doc.Title(),
		Description: doc.Description(),
		ImagePath:   imagePath,
	}
}

// Values returns the record in Header order.
func (r Record) Values() []string {
	return []string{r.ProductID, r.Title, r.Description, r.ImagePath}
}

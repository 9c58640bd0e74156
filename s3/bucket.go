package s3

// Object is one listed entry under a snapshot prefix.
type Object struct {
	Bucket string
	Key    string
	Size   int64
}

// Page is one listing response. Marker is the continuation token that
// yields the next page; More reports whether such a page exists.
type Page struct {
	Objects []Object
	Marker  string
	More    bool
}

// Keys returns the object keys of the page in store order.
func (p *Page) Keys() []string {
	keys := make([]string, 0, len(p.Objects))
	for _, o := range p.Objects {
		keys = append(keys, o.Key)
	}
	return keys
}

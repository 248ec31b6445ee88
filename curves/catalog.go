package curves

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/cepro/dercompliance/config"
)

//go:embed data
var embedded embed.FS

// standardDirs maps the supported standard ids onto the directory holding their curve documents.
// UL1741SB uses the IEEE1547.1 curves.
var standardDirs = map[string]string{
	"IEEE1547dot1": "IEEE1547",
	"IEEE1547":     "IEEE1547",
	"UL1741SB":     "IEEE1547",
	"EN50549-10":   "EN50549",
	"EN50549":      "EN50549",
}

// Catalog gives access to the curve documents of each standard, reading each document once.
type Catalog struct {
	fsys fs.FS

	lock      sync.Mutex
	documents map[string]*Document
}

// NewCatalog returns a catalog reading from `fsys`, which is laid out as <standard dir>/<function>.json.
// If `fsys` is nil the built-in curve documents are used.
func NewCatalog(fsys fs.FS) *Catalog {
	if fsys == nil {
		sub, err := fs.Sub(embedded, "data")
		if err != nil {
			panic(fmt.Sprintf("embedded curve data: %v", err))
		}
		fsys = sub
	}
	return &Catalog{
		fsys:      fsys,
		documents: make(map[string]*Document),
	}
}

// Load returns the curve document for the given standard id and function, e.g. "UL1741SB" and "VW".
func (c *Catalog) Load(standard, function string) (*Document, error) {
	dir, ok := standardDirs[standard]
	if !ok {
		return nil, config.Invalidf("unsupported standard '%s'", standard)
	}
	filePath := path.Join(dir, function+".json")

	c.lock.Lock()
	defer c.lock.Unlock()

	if doc, ok := c.documents[filePath]; ok {
		return doc, nil
	}

	file, err := c.fsys.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open curve document '%s': %v", config.ErrInvalid, filePath, err)
	}
	defer file.Close()

	doc, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", filePath, err)
	}
	c.documents[filePath] = doc

	return doc, nil
}

// Curve is a shortcut to load a document and pick one curve from it.
func (c *Catalog) Curve(standard, function, category string, id int) (Curve, error) {
	doc, err := c.Load(standard, function)
	if err != nil {
		return Curve{}, err
	}
	return doc.Curve(category, id)
}

package fetcher

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

// maxWorkbookBytes bounds how much of an XLSX feed is read into memory.
const maxWorkbookBytes = 64 << 20

// Decode parses a feed body into documents according to its format.
func Decode(ctx context.Context, format model.SourceFormat, r io.Reader) ([]model.Document, error) {
	switch format {
	case model.SourceFormatRSS, "":
		return decodeFeed(r)
	case model.SourceFormatJSON:
		return decodeJSON(ctx, r)
	case model.SourceFormatCSV:
		return decodeCSV(ctx, r)
	case model.SourceFormatXLSX:
		return decodeXLSX(r)
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}
}

// decodeFeed handles RSS, Atom and JSON Feed documents.
func decodeFeed(r io.Reader) ([]model.Document, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse")
	}

	docs := make([]model.Document, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		doc := model.Document{
			Title: title,
			URL:   item.Link,
			DOI:   itemDOI(item),
		}
		if doc.URL == "" {
			doc.URL = item.GUID
		}
		for _, a := range item.Authors {
			if a != nil && strings.TrimSpace(a.Name) != "" {
				doc.Authors = append(doc.Authors, strings.TrimSpace(a.Name))
			}
		}
		switch {
		case item.Description != "":
			doc.Abstract = stripHTML(item.Description)
		case item.Content != "":
			doc.Abstract = stripHTML(item.Content)
		}
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			doc.PublicationDate = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			doc.PublicationDate = &t
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// itemDOI looks for a DOI in the Dublin Core identifiers, then the GUID and
// link.
func itemDOI(item *gofeed.Item) string {
	if item.DublinCoreExt != nil {
		for _, id := range item.DublinCoreExt.Identifier {
			if doi := normalizeDOI(id); doi != "" {
				return doi
			}
		}
	}
	for _, candidate := range []string{item.GUID, item.Link} {
		if doi := normalizeDOI(candidate); doi != "" {
			return doi
		}
	}
	return ""
}

func normalizeDOI(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "doi:"):
		return strings.TrimSpace(s[len("doi:"):])
	case strings.Contains(lower, "doi.org/"):
		return s[strings.Index(lower, "doi.org/")+len("doi.org/"):]
	case strings.HasPrefix(lower, "10.") && strings.Contains(s, "/"):
		return s
	}
	return ""
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// documentRecord is the JSON feed shape. Dates are accepted in several
// layouts, so they are decoded as strings.
type documentRecord struct {
	Title                string   `json:"title"`
	Authors              []string `json:"authors"`
	Abstract             string   `json:"abstract"`
	PublicationDate      string   `json:"publication_date"`
	DOI                  string   `json:"doi"`
	URL                  string   `json:"url"`
	Methods              string   `json:"methods"`
	Outcomes             string   `json:"outcomes"`
	PrimaryOutcome       string   `json:"primary_outcome"`
	StudyDesign          string   `json:"study_design"`
	SampleSize           int      `json:"sample_size"`
	PeerReviewed         bool     `json:"peer_reviewed"`
	SignificanceReported bool     `json:"significance_reported"`
}

func (r documentRecord) document() model.Document {
	return model.Document{
		Title:                strings.TrimSpace(r.Title),
		Authors:              r.Authors,
		Abstract:             strings.TrimSpace(r.Abstract),
		PublicationDate:      parseDate(r.PublicationDate),
		DOI:                  strings.TrimSpace(r.DOI),
		URL:                  strings.TrimSpace(r.URL),
		Methods:              strings.TrimSpace(r.Methods),
		Outcomes:             strings.TrimSpace(r.Outcomes),
		PrimaryOutcome:       strings.TrimSpace(r.PrimaryOutcome),
		StudyDesign:          strings.TrimSpace(r.StudyDesign),
		SampleSize:           r.SampleSize,
		PeerReviewed:         r.PeerReviewed,
		SignificanceReported: r.SignificanceReported,
	}
}

func decodeJSON(ctx context.Context, r io.Reader) ([]model.Document, error) {
	recCh, errCh := DecodeJSONArray[documentRecord](ctx, r)

	var docs []model.Document
	for rec := range recCh {
		if doc := rec.document(); doc.Title != "" {
			docs = append(docs, doc)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return docs, nil
}

func decodeCSV(ctx context.Context, r io.Reader) ([]model.Document, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var (
		cols columnIndex
		docs []model.Document
	)
	for row := range rowCh {
		if cols == nil {
			cols = newColumnIndex(<-headerCh)
		}
		if doc := cols.document(row); doc.Title != "" {
			docs = append(docs, doc)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return docs, nil
}

func decodeXLSX(r io.Reader) ([]model.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxWorkbookBytes))
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read body")
	}
	rows, err := ReadXLSX(data, XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := newColumnIndex(rows[0])
	var docs []model.Document
	for _, row := range rows[1:] {
		if doc := cols.document(row); doc.Title != "" {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// headerAliases maps accepted tabular headers to document fields.
var headerAliases = map[string]string{
	"title":                 "title",
	"authors":               "authors",
	"author":                "authors",
	"abstract":              "abstract",
	"summary":               "abstract",
	"publication_date":      "publication_date",
	"pub_date":              "publication_date",
	"published":             "publication_date",
	"date":                  "publication_date",
	"doi":                   "doi",
	"url":                   "url",
	"link":                  "url",
	"methods":               "methods",
	"outcomes":              "outcomes",
	"primary_outcome":       "primary_outcome",
	"study_design":          "study_design",
	"study_type":            "study_design",
	"design":                "study_design",
	"sample_size":           "sample_size",
	"n":                     "sample_size",
	"peer_reviewed":         "peer_reviewed",
	"reviewed":              "peer_reviewed",
	"significance_reported": "significance_reported",
	"significant":           "significance_reported",
}

// columnIndex maps document fields to column positions.
type columnIndex map[string]int

func newColumnIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		if field, ok := headerAliases[key]; ok {
			if _, dup := idx[field]; !dup {
				idx[field] = i
			}
		}
	}
	return idx
}

func (c columnIndex) get(row []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columnIndex) document(row []string) model.Document {
	return model.Document{
		Title:                c.get(row, "title"),
		Authors:              splitAuthors(c.get(row, "authors")),
		Abstract:             c.get(row, "abstract"),
		PublicationDate:      parseDate(c.get(row, "publication_date")),
		DOI:                  c.get(row, "doi"),
		URL:                  c.get(row, "url"),
		Methods:              c.get(row, "methods"),
		Outcomes:             c.get(row, "outcomes"),
		PrimaryOutcome:       c.get(row, "primary_outcome"),
		StudyDesign:          c.get(row, "study_design"),
		SampleSize:           parseCount(c.get(row, "sample_size")),
		PeerReviewed:         parseFlag(c.get(row, "peer_reviewed")),
		SignificanceReported: parseFlag(c.get(row, "significance_reported")),
	}
}

func splitAuthors(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' }) {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"2006",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

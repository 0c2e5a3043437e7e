package extractor

import (
	"fmt"
	"io"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Product record field names.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldRating      = "rating"
	FieldImageURL    = "image_url"
	FieldDescription = "description"
	FieldBrand       = "brand"
	FieldCategory    = "category"
	FieldURL         = "url"
)

const (
	DefaultItemSelector = ".product-item"
	DefaultNextSelector = ".next-page"
)

// Record holds the fields found for one product element. A field whose
// selector matched nothing is not present in the map.
type Record map[string]string

// Get returns the value of a field and whether it was present.
func (r Record) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// FieldRule describes how one record field is selected within a product element.
type FieldRule struct {
	Name     string
	Selector string
	// Attr selects an attribute value instead of the element text.
	Attr string
	// Resolve turns the selected value into an absolute URL against the page URL.
	Resolve bool
}

// DefaultRules returns the field rules for the generic beauty storefront layout.
func DefaultRules() []FieldRule {
	return []FieldRule{
		{Name: FieldName, Selector: ".product-name"},
		{Name: FieldPrice, Selector: ".product-price"},
		{Name: FieldRating, Selector: ".product-rating", Attr: "data-rating"},
		{Name: FieldImageURL, Selector: ".product-image img", Attr: "src"},
		{Name: FieldDescription, Selector: ".product-description"},
		{Name: FieldBrand, Selector: ".product-brand"},
		{Name: FieldCategory, Selector: ".product-category"},
		{Name: FieldURL, Selector: ".product-link", Attr: "href", Resolve: true},
	}
}

type Options struct {
	ItemSelector string
	NextSelector string
	Rules        []FieldRule
}

func DefaultOptions() *Options {
	return &Options{
		ItemSelector: DefaultItemSelector,
		NextSelector: DefaultNextSelector,
		Rules:        DefaultRules(),
	}
}

// Extractor turns a product listing page into records. It keeps no state
// between calls and is safe for concurrent use.
type Extractor struct {
	itemSelector string
	nextSelector string
	rules        []FieldRule
}

func New(opts *Options) *Extractor {
	if opts == nil {
		opts = DefaultOptions()
	}

	rules := make([]FieldRule, len(opts.Rules))
	copy(rules, opts.Rules)

	return &Extractor{
		itemSelector: opts.ItemSelector,
		nextSelector: opts.NextSelector,
		rules:        rules,
	}
}

// Page is the result of extracting a single document.
type Page struct {
	items *goquery.Selection
	next  *goquery.Selection
	base  *url.URL
	rules []FieldRule
}

// Extract prepares the product elements and pagination link of doc.
// Records are built lazily as the sequence from Page.Records is consumed.
func (e *Extractor) Extract(doc *goquery.Document, base *url.URL) *Page {
	return &Page{
		items: doc.Find(e.itemSelector),
		next:  doc.Find(e.nextSelector).First(),
		base:  base,
		rules: e.rules,
	}
}

// ExtractReader parses HTML from r and extracts it against baseURL.
func (e *Extractor) ExtractReader(r io.Reader, baseURL string) (*Page, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return e.Extract(doc, base), nil
}

// Len reports how many product elements matched.
func (p *Page) Len() int {
	return p.items.Length()
}

// Records yields one record per product element in document order.
func (p *Page) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := 0; i < p.items.Length(); i++ {
			if !yield(p.record(p.items.Eq(i))) {
				return
			}
		}
	}
}

// Collect drains Records into a slice.
func (p *Page) Collect() []Record {
	records := make([]Record, 0, p.items.Length())
	for rec := range p.Records() {
		records = append(records, rec)
	}
	return records
}

// Next returns the absolute URL of the next page, if the page links to one.
func (p *Page) Next() (string, bool) {
	if p.next.Length() == 0 {
		return "", false
	}

	href, ok := p.next.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}

	return resolve(p.base, href)
}

func (p *Page) record(item *goquery.Selection) Record {
	rec := make(Record, len(p.rules))

	for _, rule := range p.rules {
		value, ok := selectValue(item, rule)
		if !ok {
			continue
		}

		if rule.Resolve {
			value, ok = resolve(p.base, value)
			if !ok {
				continue
			}
		}

		rec[rule.Name] = value
	}

	return rec
}

// selectValue reads the first match of rule. Text values are the combined
// text of the element and all of its descendants.
func selectValue(item *goquery.Selection, rule FieldRule) (string, bool) {
	sel := item.Find(rule.Selector).First()
	if sel.Length() == 0 {
		return "", false
	}

	var value string
	if rule.Attr != "" {
		attr, ok := sel.Attr(rule.Attr)
		if !ok {
			return "", false
		}
		value = attr
	} else {
		value = sel.Text()
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	return value, true
}

func resolve(base *url.URL, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	if base == nil {
		if !u.IsAbs() {
			return "", false
		}
		return u.String(), true
	}

	return base.ResolveReference(u).String(), true
}

package index

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 implements Okapi BM25 ranking with the non-negative Lucene IDF. Call
// Build after the last AddDocument; Search on an unbuilt index builds it
// first, which is not safe for concurrent use.
type BM25 struct {
	k1    float64
	b     float64
	docs  []bm25Doc
	df    map[string]int // document frequency per term
	idf   map[string]float64
	avgDL float64
	dirty bool
}

type bm25Doc struct {
	ID     string
	Length int
	TF     map[string]float64
}

// NewBM25 creates a new BM25 index; zero parameters take the usual
// defaults.
func NewBM25(k1, b float64) *BM25 {
	if k1 == 0 {
		k1 = 1.5
	}
	if b == 0 {
		b = 0.75
	}
	return &BM25{
		k1:  k1,
		b:   b,
		df:  make(map[string]int),
		idf: make(map[string]float64),
	}
}

// AddDocument adds a document to the index.
func (bm *BM25) AddDocument(id, text string) {
	tokens := tokenize(text)
	tf := make(map[string]float64)
	for _, t := range tokens {
		tf[t]++
	}
	bm.docs = append(bm.docs, bm25Doc{ID: id, Length: len(tokens), TF: tf})
	for t := range tf {
		bm.df[t]++
	}
	bm.dirty = true
}

// Build computes average document length and term IDFs.
func (bm *BM25) Build() {
	totalLen := 0
	for _, d := range bm.docs {
		totalLen += d.Length
	}
	bm.avgDL = 0
	if len(bm.docs) > 0 {
		bm.avgDL = float64(totalLen) / float64(len(bm.docs))
	}

	n := float64(len(bm.docs))
	for word, freq := range bm.df {
		bm.idf[word] = math.Log(1 + (n-float64(freq)+0.5)/(float64(freq)+0.5))
	}
	bm.dirty = false
}

// BM25Result holds a scored document ID.
type BM25Result struct {
	ID    string
	Score float64
}

type scored struct {
	idx   int
	score float64
}

// Search returns the top-k documents for a query, best first. Ties keep
// insertion order.
func (bm *BM25) Search(query string, topK int) []BM25Result {
	if bm.dirty {
		bm.Build()
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(bm.docs) == 0 || bm.avgDL == 0 {
		return nil
	}

	var results []scored
	for i, doc := range bm.docs {
		var score float64
		for _, token := range queryTokens {
			termFreq := doc.TF[token]
			if termFreq == 0 {
				continue
			}
			tfNorm := (termFreq * (bm.k1 + 1)) / (termFreq + bm.k1*(1-bm.b+bm.b*float64(doc.Length)/bm.avgDL))
			score += bm.idf[token] * tfNorm
		}
		if score > 0 {
			results = append(results, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].idx < results[j].idx
		}
		return results[i].score > results[j].score
	})

	if topK > len(results) {
		topK = len(results)
	}
	out := make([]BM25Result, topK)
	for i := 0; i < topK; i++ {
		out[i] = BM25Result{ID: bm.docs[results[i].idx].ID, Score: results[i].score}
	}
	return out
}

// DocCount returns the number of documents in the index.
func (bm *BM25) DocCount() int {
	return len(bm.docs)
}

// tokenize splits text into lowercase tokens on non-alphanumerics and
// camelCase boundaries, dropping single characters.
func tokenize(text string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) > 1 {
			tokens = append(tokens, strings.ToLower(string(current)))
		}
		current = current[:0]
	}
	runes := []rune(text)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return tokens
}

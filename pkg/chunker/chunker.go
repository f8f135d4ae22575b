package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ChunkType string

const (
	TypeParagraph ChunkType = "paragraph"
	TypeSection   ChunkType = "section"
	TypeSentence  ChunkType = "sentence"
	TypeFragment  ChunkType = "fragment"
)

type Options struct {
	MaxChunkSize      int  // characters
	MinChunkSize      int  // characters
	Overlap           int  // characters, carried over as Overlap/6 words
	PreserveStructure bool // chunk along headings and paragraphs when present
	SemanticSplitting bool // pack whole sentences instead of words
}

type ChunkMetadata struct {
	WordCount     int  `json:"word_count"`
	SentenceCount int  `json:"sentence_count"`
	HasHeading    bool `json:"has_heading"`
	HeadingLevel  int  `json:"heading_level,omitempty"`
}

type TextChunk struct {
	Content  string        `json:"content"`
	Index    int           `json:"index"`
	Start    int           `json:"start"` // byte offset in the normalized text
	End      int           `json:"end"`
	Type     ChunkType     `json:"type"`
	Metadata ChunkMetadata `json:"metadata"`
}

func DefaultOptions() Options {
	return Options{
		MaxChunkSize:      800,
		MinChunkSize:      200,
		Overlap:           100,
		PreserveStructure: true,
		SemanticSplitting: true,
	}
}

// Option configures a Chunker.
type Option func(*Options)

func WithMaxChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxChunkSize = n
		}
	}
}

func WithMinChunkSize(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MinChunkSize = n
		}
	}
}

func WithOverlap(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Overlap = n
		}
	}
}

func WithPreserveStructure(v bool) Option {
	return func(o *Options) { o.PreserveStructure = v }
}

func WithSemanticSplitting(v bool) Option {
	return func(o *Options) { o.SemanticSplitting = v }
}

// WithOptions replaces every setting at once; invalid sizes fall back to defaults.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		def := DefaultOptions()
		*o = opts
		if o.MaxChunkSize <= 0 {
			o.MaxChunkSize = def.MaxChunkSize
		}
		if o.MinChunkSize < 0 {
			o.MinChunkSize = def.MinChunkSize
		}
		if o.Overlap < 0 {
			o.Overlap = 0
		}
	}
}

type Chunker struct {
	opts Options
}

func New(opts ...Option) *Chunker {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MinChunkSize > o.MaxChunkSize {
		o.MinChunkSize = o.MaxChunkSize / 4
	}
	return &Chunker{opts: o}
}

func (c *Chunker) Options() Options { return c.opts }

// Chunk splits text with the given options.
func Chunk(text string, opts Options) []TextChunk {
	return New(WithOptions(opts)).Chunk(text)
}

// Chunk splits text into ordered chunk records. Whitespace-only input
// yields nil; any other input yields at least one chunk.
func (c *Chunker) Chunk(text string) []TextChunk {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	st := analyzeStructure(normalized)

	var chunks []TextChunk
	switch {
	case c.opts.PreserveStructure && st.hasStructure():
		chunks = c.structureChunks(normalized, st)
	case c.opts.SemanticSplitting:
		chunks = c.pack(normalized, splitSentences(normalized, span{0, len(normalized)}), TypeSentence)
	default:
		chunks = c.pack(normalized, wordSpans(normalized, span{0, len(normalized)}), TypeFragment)
	}

	for i := range chunks {
		chunks[i].Index = i
		if level, ok := st.headingAt[chunks[i].Start]; ok {
			chunks[i].Metadata.HasHeading = true
			chunks[i].Metadata.HeadingLevel = level
		}
	}
	return c.addOverlap(chunks)
}

var (
	caseBoundary   = regexp.MustCompile(`([a-z])([A-Z])`)
	missingSpace   = regexp.MustCompile(`(\w)([.!?])([A-Z])`)
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings and whitespace and repairs words that
// text extraction glued together.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = caseBoundary.ReplaceAllString(text, "${1} ${2}")
	text = missingSpace.ReplaceAllString(text, "${1}${2} ${3}")
	text = horizontalRuns.ReplaceAllString(text, " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

type span struct{ start, end int }

type structure struct {
	headings   []int // byte offsets of heading lines
	headingAt  map[int]int
	paragraphs []span
}

func (s structure) hasStructure() bool {
	return len(s.headings) > 0 || len(s.paragraphs) > 3
}

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	capsHeading     = regexp.MustCompile(`^[A-Z0-9\s\-_:]+$`)
	numberedHeading = regexp.MustCompile(`^\d+\.?\s+[A-Z]`)
	paragraphBreak  = regexp.MustCompile(`\n\s*\n`)
)

func analyzeStructure(text string) structure {
	st := structure{headingAt: make(map[int]int)}

	pos := 0
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lineStart := pos + strings.Index(raw, line)
		pos += len(raw) + 1

		level := 0
		n := utf8.RuneCountInString(line)
		switch {
		case line == "":
		case markdownHeading.MatchString(line):
			level = len(markdownHeading.FindStringSubmatch(line)[1])
		case n < 80 && line == strings.ToUpper(line) && capsHeading.MatchString(line):
			level = 1
		case n < 100 && numberedHeading.MatchString(line):
			level = 2
		}
		if level > 0 {
			st.headings = append(st.headings, lineStart)
			st.headingAt[lineStart] = level
		}
	}

	last := 0
	for _, m := range paragraphBreak.FindAllStringIndex(text, -1) {
		if m[0] > last {
			st.paragraphs = append(st.paragraphs, span{last, m[0]})
		}
		last = m[1]
	}
	if last < len(text) {
		st.paragraphs = append(st.paragraphs, span{last, len(text)})
	}
	return st
}

// structureChunks cuts along sections (heading to next heading) or, when
// there are no headings, along paragraphs. Adjacent blocks are merged while
// they fit in one chunk or while the pending block is below the minimum;
// oversized blocks are split sentence by sentence.
func (c *Chunker) structureChunks(text string, st structure) []TextChunk {
	blockType := TypeParagraph
	blocks := st.paragraphs
	if len(st.headings) > 0 {
		blockType = TypeSection
		blocks = nil
		if st.headings[0] > 0 {
			blocks = append(blocks, span{0, st.headings[0]})
		}
		for i, h := range st.headings {
			end := len(text)
			if i+1 < len(st.headings) {
				end = st.headings[i+1]
			}
			blocks = append(blocks, span{h, end})
		}
	}

	var chunks []TextChunk
	emit := func(b span) {
		content := trimmed(text, b)
		if content.start == content.end {
			return
		}
		if c.size(text[content.start:content.end]) > c.opts.MaxChunkSize {
			chunks = append(chunks, c.pack(text, splitSentences(text, content), TypeSentence)...)
			return
		}
		chunks = append(chunks, c.newChunk(text, content, blockType))
	}

	var pending span
	has := false
	for _, b := range blocks {
		if !has {
			pending, has = b, true
			continue
		}
		merged := span{pending.start, b.end}
		if c.size(strings.TrimSpace(text[merged.start:merged.end])) <= c.opts.MaxChunkSize ||
			c.size(strings.TrimSpace(text[pending.start:pending.end])) < c.opts.MinChunkSize {
			pending = merged
			continue
		}
		emit(pending)
		pending = b
	}
	if has {
		emit(pending)
	}
	return chunks
}

// pack greedily joins units into chunks no larger than MaxChunkSize. A
// chunk is only closed early once it reaches MinChunkSize; below that the
// next unit is broken into words to top it up.
func (c *Chunker) pack(text string, units []span, typ ChunkType) []TextChunk {
	var (
		chunks []TextChunk
		parts  []string
		cur    span
		curLen int
	)
	flush := func() {
		if len(parts) == 0 {
			return
		}
		chunk := c.newChunk(text, cur, typ)
		chunk.Content = strings.Join(parts, " ")
		chunk.Metadata.WordCount = len(strings.Fields(chunk.Content))
		chunk.Metadata.SentenceCount = len(splitSentences(chunk.Content, span{0, len(chunk.Content)}))
		chunks = append(chunks, chunk)
		parts, curLen = nil, 0
	}
	add := func(u span, piece string) {
		if len(parts) == 0 {
			cur.start = u.start
		} else {
			curLen++
		}
		parts = append(parts, piece)
		curLen += c.size(piece)
		cur.end = u.end
	}

	queue := append([]span(nil), units...)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		piece := text[u.start:u.end]
		n := c.size(piece)

		if (len(parts) == 0 && n <= c.opts.MaxChunkSize) || (len(parts) > 0 && curLen+1+n <= c.opts.MaxChunkSize) {
			add(u, piece)
			continue
		}
		if len(parts) > 0 && curLen >= c.opts.MinChunkSize {
			flush()
			queue = append([]span{u}, queue...)
			continue
		}
		if words := wordSpans(text, u); len(words) > 1 {
			queue = append(words, queue...)
			continue
		}
		// a single word that cannot share a chunk
		if len(parts) > 0 {
			flush()
			queue = append([]span{u}, queue...)
			continue
		}
		add(u, piece)
		flush()
	}
	flush()
	return chunks
}

func (c *Chunker) newChunk(text string, s span, typ ChunkType) TextChunk {
	content := strings.TrimSpace(text[s.start:s.end])
	return TextChunk{
		Content: content,
		Start:   s.start,
		End:     s.end,
		Type:    typ,
		Metadata: ChunkMetadata{
			WordCount:     len(strings.Fields(content)),
			SentenceCount: len(splitSentences(content, span{0, len(content)})),
		},
	}
}

func (c *Chunker) addOverlap(chunks []TextChunk) []TextChunk {
	words := c.opts.Overlap / 6
	if words <= 0 || len(chunks) <= 1 {
		return chunks
	}
	out := make([]TextChunk, len(chunks))
	copy(out, chunks)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].Content)
		n := min(words, len(prev))
		if n == 0 {
			continue
		}
		out[i].Content = strings.Join(prev[len(prev)-n:], " ") + " " + chunks[i].Content
	}
	return out
}

func (c *Chunker) size(s string) int {
	return utf8.RuneCountInString(s)
}

var abbreviations = map[string]struct{}{
	"Dr": {}, "Mr": {}, "Mrs": {}, "Ms": {}, "Prof": {}, "Inc": {}, "Ltd": {}, "Corp": {}, "Co": {},
	"vs": {}, "etc": {}, "i.e": {}, "e.g": {}, "cf": {}, "al": {}, "St": {}, "Ave": {}, "Blvd": {},
}

// splitSentences finds sentence spans inside s. A sentence ends at . ! or ?
// followed by whitespace and an upper-case letter, unless the period closes
// a known abbreviation.
func splitSentences(text string, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i < s.end; i++ {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		j := i + 1
		for j < s.end && isSpace(text[j]) {
			j++
		}
		if j == i+1 || j >= s.end {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[j:s.end])
		if !unicode.IsUpper(next) {
			continue
		}
		if ch == '.' && endsWithAbbreviation(text[start:i]) {
			continue
		}
		if t := trimmed(text, span{start, i + 1}); t.start < t.end {
			out = append(out, t)
		}
		start = j
		i = j - 1
	}
	if t := trimmed(text, span{start, s.end}); t.start < t.end {
		out = append(out, t)
	}
	return out
}

func endsWithAbbreviation(before string) bool {
	k := strings.LastIndexFunc(before, unicode.IsSpace)
	_, ok := abbreviations[before[k+1:]]
	return ok
}

var wordPattern = regexp.MustCompile(`\S+`)

func wordSpans(text string, s span) []span {
	locs := wordPattern.FindAllStringIndex(text[s.start:s.end], -1)
	out := make([]span, len(locs))
	for i, l := range locs {
		out[i] = span{s.start + l[0], s.start + l[1]}
	}
	return out
}

func trimmed(text string, s span) span {
	for s.start < s.end && isSpace(text[s.start]) {
		s.start++
	}
	for s.end > s.start && isSpace(text[s.end-1]) {
		s.end--
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/cisec/eflp/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fortigateLine(i int) string {
	return fmt.Sprintf(`<189>date=2024-01-15 time=10:30:%02d devname="fw01" level="notice" srcip=10.0.0.%d srcport=%d dstip=8.8.8.8 dstport=53 action="accept" msg="line %d"`,
		i%60, i%250, 1000+i, i)
}

// fortigateFile returns n lines where every tenth is garbage.
func fortigateFile(n int) (string, int) {
	var b strings.Builder
	valid := 0
	for i := 0; i < n; i++ {
		if i%10 == 9 {
			fmt.Fprintf(&b, "garbage line %d\n", i)
			continue
		}
		b.WriteString(fortigateLine(i))
		b.WriteByte('\n')
		valid++
	}
	return b.String(), valid
}

func newTestDispatcher(cfg DispatchConfig) *Dispatcher {
	return NewDispatcher(NewRegistry(DefaultOptions(), zerolog.Nop()), cfg, zerolog.Nop())
}

func TestParseFileSkipsMalformedLines(t *testing.T) {
	content, valid := fortigateFile(100)
	require.Equal(t, 90, valid)
	path := writeFile(t, t.TempDir(), "fw.log", content)

	res, err := newTestDispatcher(DispatchConfig{}).ParseFile(context.Background(), VendorFortigate, path)
	require.NoError(t, err)

	assert.False(t, res.Delimited)
	assert.Equal(t, VendorFortigate, res.Vendor)
	assert.Equal(t, path, res.Source)
	assert.Len(t, res.Records, 90)
	assert.Equal(t, 100, res.Stats.Lines)
	assert.Equal(t, 90, res.Stats.Records)
	assert.Equal(t, 10, res.Stats.Skipped)

	// Input order is kept.
	prev := 0
	for _, r := range res.Records {
		require.NotNil(t, r.SrcPort)
		assert.Greater(t, *r.SrcPort, prev)
		prev = *r.SrcPort
	}
}

func TestParseFileIsIdempotent(t *testing.T) {
	content, _ := fortigateFile(50)
	path := writeFile(t, t.TempDir(), "fw.log", content)
	d := newTestDispatcher(DispatchConfig{})

	first, err := d.ParseFile(context.Background(), VendorFortigate, path)
	require.NoError(t, err)
	second, err := d.ParseFile(context.Background(), VendorFortigate, path)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
}

func TestParseFileUnknownVendorBeforeIO(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.log")

	_, err := newTestDispatcher(DispatchConfig{}).ParseFile(context.Background(), "zyxel", missing)
	assert.ErrorIs(t, err, ErrUnknownVendor)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestParseFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.log")

	_, err := newTestDispatcher(DispatchConfig{}).ParseFile(context.Background(), VendorFortigate, missing)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestParseFileAllGarbage(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fw.log", "nothing\nto\nsee\n")

	res, err := newTestDispatcher(DispatchConfig{}).ParseFile(context.Background(), VendorFortigate, path)
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 3, res.Stats.Skipped)
}

func TestDelimitedBypass(t *testing.T) {
	dir := t.TempDir()
	d := newTestDispatcher(DispatchConfig{})

	t.Run("csv with a vendor", func(t *testing.T) {
		path := writeFile(t, dir, "export.csv", "src,dst,port\n10.0.0.5,8.8.8.8,53\n10.0.0.6,1.1.1.1,443\n")
		res, err := d.ParseFile(context.Background(), VendorFortigate, path)
		require.NoError(t, err)

		assert.True(t, res.Delimited)
		assert.Nil(t, res.Records)
		assert.Equal(t, []map[string]string{
			{"src": "10.0.0.5", "dst": "8.8.8.8", "port": "53"},
			{"src": "10.0.0.6", "dst": "1.1.1.1", "port": "443"},
		}, res.Rows)
		assert.Equal(t, 2, res.Stats.Records)
	})

	t.Run("unknown vendor is ignored", func(t *testing.T) {
		path := writeFile(t, dir, "EXPORT.CSV", "a,b\n1,2\n")
		res, err := d.ParseFile(context.Background(), "zyxel", path)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"a": "1", "b": "2"}}, res.Rows)
	})

	t.Run("tsv with bom", func(t *testing.T) {
		path := writeFile(t, dir, "export.tsv", "\xEF\xBB\xBFname\tport\nfw1\t443\n")
		res, err := d.ParseFile(context.Background(), VendorMeraki, path)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"name": "fw1", "port": "443"}}, res.Rows)
	})

	t.Run("bare quotes inside fields", func(t *testing.T) {
		path := writeFile(t, dir, "notes.tsv", "a\tb\n1\tHe said \"hi\"\n")
		res, err := d.ParseFile(context.Background(), VendorFortigate, path)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"a": "1", "b": `He said "hi"`}}, res.Rows)

		path = writeFile(t, dir, "sizes.csv", "a,b\n1,5\" pipe\n")
		res, err = d.ParseFile(context.Background(), VendorFortigate, path)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"a": "1", "b": `5" pipe`}}, res.Rows)
	})

	t.Run("blank and repeated headers", func(t *testing.T) {
		path := writeFile(t, dir, "dupes.csv", "a,a,\n1,2,3\n")
		res, err := d.ParseFile(context.Background(), VendorMeraki, path)
		require.NoError(t, err)
		assert.Equal(t, []map[string]string{{"a": "1", "column_2": "2", "column_3": "3"}}, res.Rows)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, dir, "empty.csv", "")
		res, err := d.ParseFile(context.Background(), VendorMeraki, path)
		require.NoError(t, err)
		assert.True(t, res.Delimited)
		assert.Empty(t, res.Rows)
	})

	t.Run("malformed row fails the file", func(t *testing.T) {
		path := writeFile(t, dir, "bad.csv", "a,b\n1,2\n1,2,3\n")
		res, err := d.ParseFile(context.Background(), VendorFortigate, path)
		assert.ErrorIs(t, err, ErrDecode)
		assert.Nil(t, res)
	})
}

func TestParseErrorsLabels(t *testing.T) {
	dir := t.TempDir()
	d := newTestDispatcher(DispatchConfig{})
	decode := ParseErrors.WithLabelValues(delimitedLabel, "decode")
	openErrs := ParseErrors.WithLabelValues(delimitedLabel, "io")
	beforeDecode, beforeIO := testutil.ToFloat64(decode), testutil.ToFloat64(openErrs)

	path := writeFile(t, dir, "ragged.csv", "a,b\n1,2,3\n")
	_, err := d.ParseFile(context.Background(), "requested-vendor-1", path)
	require.ErrorIs(t, err, ErrDecode)

	_, err = d.ParseFile(context.Background(), "requested-vendor-2", filepath.Join(dir, "missing.csv"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	assert.Equal(t, beforeDecode+1, testutil.ToFloat64(decode))
	assert.Equal(t, beforeIO+1, testutil.ToFloat64(openErrs))
	assert.Zero(t, testutil.ToFloat64(ParseErrors.WithLabelValues("requested-vendor-1", "decode")))
	assert.Zero(t, testutil.ToFloat64(ParseErrors.WithLabelValues("requested-vendor-2", "io")))

	vendorIO := ParseErrors.WithLabelValues(VendorFortigate, "io")
	before := testutil.ToFloat64(vendorIO)
	_, err = d.ParseFile(context.Background(), VendorFortigate, filepath.Join(dir, "missing.log"))
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, before+1, testutil.ToFloat64(vendorIO))
}

func TestIsDelimited(t *testing.T) {
	assert.True(t, IsDelimited("a.csv"))
	assert.True(t, IsDelimited("/var/log/A.TSV"))
	assert.False(t, IsDelimited("a.log"))
	assert.False(t, IsDelimited("csv"))
}

func TestParseParallelMatchesSequential(t *testing.T) {
	content, valid := fortigateFile(500)

	seq, err := newTestDispatcher(DispatchConfig{}).ParseReader(context.Background(), VendorFortigate, "fw.log", strings.NewReader(content))
	require.NoError(t, err)

	par, err := newTestDispatcher(DispatchConfig{Workers: 4, ParallelLines: true}).ParseReader(context.Background(), VendorFortigate, "fw.log", strings.NewReader(content))
	require.NoError(t, err)

	assert.Len(t, par.Records, valid)
	assert.Equal(t, seq.Records, par.Records)
	assert.Equal(t, seq.Stats.Lines, par.Stats.Lines)
	assert.Equal(t, seq.Stats.Skipped, par.Stats.Skipped)
}

func TestParseFilesKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 1; i <= 5; i++ {
		var b strings.Builder
		for j := 0; j < i*3; j++ {
			b.WriteString(fortigateLine(j))
			b.WriteByte('\n')
		}
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("fw%d.log", i), b.String()))
	}

	results, err := newTestDispatcher(DispatchConfig{Workers: 2}).ParseFiles(context.Background(), VendorFortigate, paths)
	require.NoError(t, err)
	require.Len(t, results, len(paths))
	for i, res := range results {
		assert.Equal(t, paths[i], res.Source)
		assert.Len(t, res.Records, (i+1)*3)
	}
}

func TestParseFilesFailure(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.log", fortigateLine(1)+"\n")
	d := newTestDispatcher(DispatchConfig{})

	_, err := d.ParseFiles(context.Background(), VendorFortigate, []string{ok, filepath.Join(dir, "missing.log")})
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = d.ParseFiles(context.Background(), "zyxel", []string{ok})
	assert.ErrorIs(t, err, ErrUnknownVendor)
}

func TestStreamToleratesInvalidUTF8(t *testing.T) {
	p := newTestParser(t, VendorFortigate)

	var got []types.Record
	stats, err := p.Stream(context.Background(), strings.NewReader("<189>level=error msg=\"bad \xff byte\"\n"), func(r types.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, stats.Records)
	assert.True(t, utf8.ValidString(got[0].Message))
	assert.Equal(t, "bad \uFFFD byte", got[0].Message)
	assert.Equal(t, types.SeverityHigh, got[0].Severity)
}

func TestStreamDecodesUTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	content, err := enc.String(fortigateLine(1) + "\n" + fortigateLine(2) + "\n")
	require.NoError(t, err)

	var got []types.Record
	_, err = newTestParser(t, VendorFortigate).Stream(context.Background(), strings.NewReader(content), func(r types.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fw01", got[0].Host)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	content, _ := fortigateFile(20)
	stop := errors.New("stop")

	calls := 0
	_, err := newTestParser(t, VendorFortigate).Stream(context.Background(), strings.NewReader(content), func(types.Record) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestStreamHonoursContext(t *testing.T) {
	content, _ := fortigateFile(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestParser(t, VendorFortigate).Stream(ctx, strings.NewReader(content), func(types.Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamLineTooLong(t *testing.T) {
	ex, err := NewExtractor(VendorFortigate)
	require.NoError(t, err)
	p := NewLineParser(ex, Options{MaxLineBytes: 64}, zerolog.Nop())

	_, err = p.Stream(context.Background(), strings.NewReader(fortigateLine(1)+"\n"), func(types.Record) error { return nil })
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestLineParserParse(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fw.log", fortigateLine(7)+"\n\n"+fortigateLine(8)+"\n")

	records, err := newTestParser(t, VendorFortigate).Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "line 7", records[0].Message)
	assert.Equal(t, "line 8", records[1].Message)
}

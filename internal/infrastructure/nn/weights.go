package nn

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"mri-classifier/internal/domain/entity"
)

// Формат файла весов: ZIP-архив с manifest.json и сырыми float32 (little-endian)
// по одному элементу на тензор.
const (
	FormatID      = "mri-classifier/weights"
	FormatVersion = 1

	manifestEntry = "manifest.json"
	tensorPrefix  = "tensors/"
	sniffLen      = 16
)

// Weights содержимое файла весов.
type Weights struct {
	Architecture string
	Labels       []string
	Tensors      map[string]entity.Tensor
	Order        []string // порядок тензоров в манифесте
	Size         int64    // размер файла в байтах
}

// NumParameters число скалярных значений во всех тензорах.
func (w *Weights) NumParameters() int {
	n := 0
	for _, t := range w.Tensors {
		n += len(t.Data)
	}
	return n
}

type manifest struct {
	Format       string           `json:"format"`
	Version      int              `json:"version"`
	Architecture string           `json:"architecture"`
	Labels       []string         `json:"labels"`
	Tensors      []manifestTensor `json:"tensors"`
}

type manifestTensor struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Entry string `json:"entry"`
}

// LoadModel читает файл весов и собирает модель заданной архитектуры.
func LoadModel(path string, arch Architecture) (*Model, error) {
	w, err := ReadWeights(path)
	if err != nil {
		return nil, err
	}

	if len(w.Labels) > 0 {
		if len(w.Labels) != len(arch.Labels) {
			return nil, fmt.Errorf("%w: %s: %d labels, architecture has %d", entity.ErrWeightsLoad, path, len(w.Labels), len(arch.Labels))
		}
		for i, l := range w.Labels {
			if l != string(arch.Labels[i]) {
				return nil, fmt.Errorf("%w: %s: label %d is %q, want %q", entity.ErrWeightsLoad, path, i, l, arch.Labels[i])
			}
		}
	}

	m, err := NewModel(arch, w.Tensors)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	return m, nil
}

// ReadWeights проверяет файл (существует, не пустой, бинарный) и читает архив.
func ReadWeights(path string) (*Weights, error) {
	size, err := checkWeightsFile(path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	defer zr.Close()

	w, err := readArchive(&zr.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	w.Size = size
	return w, nil
}

func checkWeightsFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", entity.ErrWeightsNotFound, path)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", entity.ErrWeightsNotFound, path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", entity.ErrWeightsEmpty, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, fmt.Errorf("%w: %s: %w", entity.ErrWeightsLoad, path, err)
	}
	if err := sniffFormat(head[:n]); err != nil {
		return 0, fmt.Errorf("%w: %s (%d bytes)", err, path, info.Size())
	}
	return info.Size(), nil
}

// sniffFormat отличает бинарный архив от текста по первым байтам: сигнатура
// ZIP ("PK") или pickle (0x80) принимаются сразу, печатный текст отклоняется.
func sniffFormat(head []byte) error {
	if bytes.HasPrefix(head, []byte("PK")) || (len(head) > 0 && head[0] == 0x80) {
		return nil
	}
	if len(head) > 0 && isPrintableText(head) {
		return fmt.Errorf("%w: starts with text %q, expected a binary archive", entity.ErrWeightsFormat, head)
	}
	return nil
}

func isPrintableText(b []byte) bool {
	for _, c := range b {
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func readArchive(zr *zip.Reader) (*Weights, error) {
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	mf, ok := entries[manifestEntry]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", manifestEntry)
	}
	raw, err := readEntry(mf)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s is not valid JSON", manifestEntry)
	}

	doc := gjson.ParseBytes(raw)
	if f := doc.Get("format").String(); f != FormatID {
		return nil, fmt.Errorf("unknown format %q", f)
	}
	if v := doc.Get("version").Int(); v != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", v)
	}

	w := &Weights{
		Architecture: doc.Get("architecture").String(),
		Tensors:      make(map[string]entity.Tensor),
	}
	for _, l := range doc.Get("labels").Array() {
		w.Labels = append(w.Labels, l.String())
	}

	for _, item := range doc.Get("tensors").Array() {
		name := item.Get("name").String()
		if name == "" {
			return nil, fmt.Errorf("tensor without name in manifest")
		}
		if _, dup := w.Tensors[name]; dup {
			return nil, fmt.Errorf("duplicate tensor %s", name)
		}

		var shape []int
		for _, d := range item.Get("shape").Array() {
			if d.Int() < 0 {
				return nil, fmt.Errorf("tensor %s: negative dimension", name)
			}
			shape = append(shape, int(d.Int()))
		}

		entry := item.Get("entry").String()
		f, ok := entries[entry]
		if !ok {
			return nil, fmt.Errorf("tensor %s: entry %q not in archive", name, entry)
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if want := 4 * entity.NumElements(shape); len(data) != want {
			return nil, fmt.Errorf("tensor %s: %d bytes, want %d for shape %v", name, len(data), want, shape)
		}

		w.Tensors[name] = entity.Tensor{Shape: shape, Data: decodeFloats(data)}
		w.Order = append(w.Order, name)
	}
	return w, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// SaveWeights атомарно записывает параметры модели в файл весов.
func SaveWeights(path string, m *Model) error {
	arch := m.Architecture()
	specs := arch.Params()

	man := manifest{
		Format:       FormatID,
		Version:      FormatVersion,
		Architecture: arch.Name,
	}
	for _, l := range arch.Labels {
		man.Labels = append(man.Labels, string(l))
	}
	for _, p := range specs {
		man.Tensors = append(man.Tensors, manifestTensor{
			Name:  p.Name,
			Shape: p.Shape,
			Entry: tensorPrefix + p.Name,
		})
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp weights file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeArchive(tmp, man, m.params); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close weights file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename weights file: %w", err)
	}
	return nil
}

func writeArchive(w io.Writer, man manifest, params map[string]entity.Tensor) error {
	zw := zip.NewWriter(w)

	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeEntry(zw, manifestEntry, raw, zip.Deflate); err != nil {
		return err
	}

	for _, t := range man.Tensors {
		if err := writeEntry(zw, t.Entry, encodeFloats(params[t.Name].Data), zip.Store); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish weights archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func encodeFloats(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeFloats(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// Describe краткая сводка для вывода в консоль.
func (w *Weights) Describe(sample int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "architecture: %s\n", w.Architecture)
	fmt.Fprintf(&sb, "labels: %s\n", strings.Join(w.Labels, ", "))
	fmt.Fprintf(&sb, "tensors: %d, parameters: %d, file size: %d bytes\n", len(w.Tensors), w.NumParameters(), w.Size)
	for i, name := range w.Order {
		if i == sample {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(w.Order)-sample)
			break
		}
		fmt.Fprintf(&sb, "  %s %v\n", name, w.Tensors[name].Shape)
	}
	return sb.String()
}

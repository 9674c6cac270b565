package models

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidClasses is returned when a class name source cannot be parsed.
var ErrInvalidClasses = errors.New("invalid class names")

// ClassNameTable maps a model's zero-based class index to its raw label.
type ClassNameTable []string

// Name returns the raw label for idx, or "" if idx is out of range.
func (t ClassNameTable) Name(idx int) string {
	if idx < 0 || idx >= len(t) {
		return ""
	}
	return t[idx]
}

// Len returns the number of classes.
func (t ClassNameTable) Len() int {
	return len(t)
}

// LoadClassNames reads a class name file.
//
// Arguments:
//   - path: A YAML or JSON file holding a list of names, an index -> name
//     mapping, or either of those under a top-level "names" key (the layout of
//     an Ultralytics dataset file).
//
// Returns:
//   - ClassNameTable: The names, indexed from 0.
//   - error: ErrInvalidClasses wrapped with details.
func LoadClassNames(path string) (ClassNameTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading class names %s", path)
	}
	return ParseClassNames(data)
}

// ParseClassNames decodes class names from YAML or JSON bytes. It also accepts
// the Python dict literal ("{0: 'dog', 1: 'pothole'}") that exported YOLO
// models store in their "names" metadata entry, since that is valid YAML.
func ParseClassNames(data []byte) (ClassNameTable, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrInvalidClasses, "%v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.Wrap(ErrInvalidClasses, "empty document")
	}

	node := doc.Content[0]
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "names" {
				node = node.Content[i+1]
				break
			}
		}
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, errors.Wrapf(ErrInvalidClasses, "%v", err)
		}
		if len(names) == 0 {
			return nil, errors.Wrap(ErrInvalidClasses, "no classes")
		}
		return ClassNameTable(names), nil

	case yaml.MappingNode:
		var indexed map[int]string
		if err := node.Decode(&indexed); err != nil {
			return nil, errors.Wrapf(ErrInvalidClasses, "%v", err)
		}
		if len(indexed) == 0 {
			return nil, errors.Wrap(ErrInvalidClasses, "no classes")
		}
		table := make(ClassNameTable, len(indexed))
		for i := range table {
			name, ok := indexed[i]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidClasses, "class index %d missing", i)
			}
			table[i] = name
		}
		return table, nil

	default:
		return nil, errors.Wrap(ErrInvalidClasses, "expected a list or an index mapping")
	}
}

// COCOClasses is the 80 COCO classes in the zero-based order used by YOLO
// models trained on COCO.
var COCOClasses = ClassNameTable{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase",
	"frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

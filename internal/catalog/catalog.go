package catalog

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// SourceAll selects the flattened view across every source group.
	SourceAll = "all"

	duplicateCategoryErrorFormat = "duplicate category %q"
	duplicateSubtaskErrorFormat  = "duplicate subtask %q under category %q"
	categoryNotFoundErrorFormat  = "%w: %q"
	subtaskNotFoundErrorFormat   = "%w: %q/%q"
)

var (
	ErrCategoryNotFound = errors.New("unknown category")
	ErrSubtaskNotFound  = errors.New("unknown subtask")
)

// SourceGroup is a named origin partition of a subtask's dataset identifiers.
type SourceGroup struct {
	Source   string
	Datasets []string
}

// DatasetSet is either a flat list of dataset identifiers or an ordered
// sequence of source groups. The zero value is an empty flat set.
type DatasetSet struct {
	flat    []string
	groups  []SourceGroup
	grouped bool
}

func FlatDatasets(identifiers ...string) DatasetSet {
	return DatasetSet{flat: identifiers}
}

func GroupedDatasets(groups ...SourceGroup) DatasetSet {
	return DatasetSet{groups: groups, grouped: true}
}

// Flattened returns every identifier in definition order. Grouped sets
// concatenate their groups; duplicates across groups are preserved since
// each group is an independent namespace.
func (s DatasetSet) Flattened() []string {
	if !s.grouped {
		return cloneStrings(s.flat)
	}
	flattened := make([]string, 0)
	for _, group := range s.groups {
		flattened = append(flattened, group.Datasets...)
	}
	return flattened
}

// BySource returns the identifiers for one source group. Flat sets ignore
// the source argument entirely. An absent group yields an empty sequence,
// never an error.
func (s DatasetSet) BySource(source string) []string {
	if !s.grouped {
		return cloneStrings(s.flat)
	}
	if source == "" || source == SourceAll {
		return s.Flattened()
	}
	for _, group := range s.groups {
		if group.Source == source {
			return cloneStrings(group.Datasets)
		}
	}
	return []string{}
}

// Subtask is one concrete problem formulation within a category.
type Subtask struct {
	Key         string
	Models      []string
	Datasets    DatasetSet
	Description string
}

// Category is a top-level ML problem domain with an ordered set of subtasks.
type Category struct {
	Key      string
	Subtasks []Subtask
}

// Catalog is the read-only decision table behind the wizard. It is built
// once, validated at construction, and never mutated afterwards, so any
// number of concurrent readers may use it without locking.
type Catalog struct {
	categories    []Category
	categoryIndex map[string]int
}

// New validates the definition and builds the lookup index. Category keys
// must be unique, and subtask keys must be unique within their category.
func New(categories ...Category) (*Catalog, error) {
	categoryIndex := make(map[string]int, len(categories))
	for position, category := range categories {
		if _, seen := categoryIndex[category.Key]; seen {
			return nil, fmt.Errorf(duplicateCategoryErrorFormat, category.Key)
		}
		categoryIndex[category.Key] = position

		subtaskKeys := make(map[string]struct{}, len(category.Subtasks))
		for _, subtask := range category.Subtasks {
			if _, seen := subtaskKeys[subtask.Key]; seen {
				return nil, fmt.Errorf(duplicateSubtaskErrorFormat, subtask.Key, category.Key)
			}
			subtaskKeys[subtask.Key] = struct{}{}
		}
	}
	return &Catalog{categories: categories, categoryIndex: categoryIndex}, nil
}

// Categories returns the category keys in definition order.
func (c *Catalog) Categories() []string {
	keys := make([]string, 0, len(c.categories))
	for _, category := range c.categories {
		keys = append(keys, category.Key)
	}
	return keys
}

// Subtasks returns the ordered subtask keys under the category.
func (c *Catalog) Subtasks(category string) ([]string, error) {
	found, err := c.category(category)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(found.Subtasks))
	for _, subtask := range found.Subtasks {
		keys = append(keys, subtask.Key)
	}
	return keys, nil
}

// Datasets returns dataset identifiers for the subtask. Source selects one
// group of a grouped set; SourceAll (or empty) flattens across groups. A
// subtask with zero datasets yields an empty sequence, not an error.
func (c *Catalog) Datasets(category, subtask, source string) ([]string, error) {
	found, err := c.subtask(category, subtask)
	if err != nil {
		return nil, err
	}
	return found.Datasets.BySource(source), nil
}

// Models returns the subtask's model list in definition order, or an empty
// sequence when the subtask stores no models.
func (c *Catalog) Models(category, subtask string) ([]string, error) {
	found, err := c.subtask(category, subtask)
	if err != nil {
		return nil, err
	}
	if found.Models == nil {
		return []string{}, nil
	}
	return cloneStrings(found.Models), nil
}

// TaskInfo is the composite snapshot returned for one subtask.
type TaskInfo struct {
	Models      []string `json:"models"`
	Datasets    []string `json:"datasets"`
	Description string   `json:"description"`
}

func (c *Catalog) TaskInfo(category, subtask string) (TaskInfo, error) {
	found, err := c.subtask(category, subtask)
	if err != nil {
		return TaskInfo{}, err
	}
	models := found.Models
	if models == nil {
		models = []string{}
	}
	return TaskInfo{
		Models:      cloneStrings(models),
		Datasets:    found.Datasets.Flattened(),
		Description: found.Description,
	}, nil
}

// Criteria holds the user-stated preference switches. Absent switches are
// inactive; there is no such thing as a malformed criteria value.
type Criteria struct {
	FastTraining  bool `json:"fast_training"`
	Interpretable bool `json:"interpretable"`
	HighAccuracy  bool `json:"high_accuracy"`
}

// Recommendation pairs a narrowed model list with the subtask's datasets.
type Recommendation struct {
	Models   []string `json:"models"`
	Datasets []string `json:"datasets"`
}

var (
	fastTrainingKeywords  = []string{"Linear", "Logistic", "KNeighbors"}
	interpretableKeywords = []string{"Linear", "Logistic", "Tree"}
	highAccuracyKeywords  = []string{"Forest", "Boosting"}
)

// FilterByCriteria narrows the model list of every subtask in the category.
// Active switches apply in a fixed order (fast_training, interpretable,
// high_accuracy), each one re-filtering the previous step's output. When
// every model is filtered out, the subtask's full original list is returned
// instead; the wizard never surfaces an empty recommendation for a subtask
// that had models. Datasets pass through unfiltered.
func (c *Catalog) FilterByCriteria(category string, criteria Criteria) (map[string]Recommendation, error) {
	found, err := c.category(category)
	if err != nil {
		return nil, err
	}

	results := make(map[string]Recommendation, len(found.Subtasks))
	for _, subtask := range found.Subtasks {
		models := cloneStrings(subtask.Models)
		if criteria.FastTraining {
			models = keepMatching(models, fastTrainingKeywords)
		}
		if criteria.Interpretable {
			models = keepMatching(models, interpretableKeywords)
		}
		if criteria.HighAccuracy {
			models = keepMatching(models, highAccuracyKeywords)
		}
		if len(models) == 0 {
			models = cloneStrings(subtask.Models)
		}
		if models == nil {
			models = []string{}
		}
		results[subtask.Key] = Recommendation{
			Models:   models,
			Datasets: subtask.Datasets.Flattened(),
		}
	}
	return results, nil
}

func (c *Catalog) category(key string) (Category, error) {
	position, ok := c.categoryIndex[key]
	if !ok {
		return Category{}, fmt.Errorf(categoryNotFoundErrorFormat, ErrCategoryNotFound, key)
	}
	return c.categories[position], nil
}

func (c *Catalog) subtask(categoryKey, subtaskKey string) (Subtask, error) {
	found, err := c.category(categoryKey)
	if err != nil {
		return Subtask{}, err
	}
	for _, subtask := range found.Subtasks {
		if subtask.Key == subtaskKey {
			return subtask, nil
		}
	}
	return Subtask{}, fmt.Errorf(subtaskNotFoundErrorFormat, ErrSubtaskNotFound, categoryKey, subtaskKey)
}

func keepMatching(models []string, keywords []string) []string {
	kept := make([]string, 0, len(models))
	for _, model := range models {
		for _, keyword := range keywords {
			if strings.Contains(model, keyword) {
				kept = append(kept, model)
				break
			}
		}
	}
	return kept
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	cloned := make([]string, len(values))
	copy(cloned, values)
	return cloned
}

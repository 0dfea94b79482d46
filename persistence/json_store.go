package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"starbase/server/models"
)

// JSONStore handles data persistence using a local JSON file
type JSONStore struct {
	filePath string
	mutex    sync.RWMutex
	data     *JSONData
}

// JSONData represents the structure of the JSON database
type JSONData struct {
	Builders map[string]*models.Builder      `json:"builders"`
	Stations map[string]*models.GameMap      `json:"stations"`
	Builds   map[string][]models.BuildRecord `json:"builds"`
}

// NewJSONStore creates a new JSON storage manager
func NewJSONStore(filePath string) (*JSONStore, error) {
	store := &JSONStore{
		filePath: filePath,
		data:     newJSONData(),
	}

	if _, err := os.Stat(filePath); err == nil {
		if err := store.loadFromFile(); err != nil {
			return nil, fmt.Errorf("failed to load JSON store: %w", err)
		}
	} else {
		if dir := filepath.Dir(filePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create JSON store directory: %w", err)
			}
		}
		store.mutex.Lock()
		err := store.saveLocked()
		store.mutex.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to create JSON store file: %w", err)
		}
	}

	return store, nil
}

func newJSONData() *JSONData {
	return &JSONData{
		Builders: make(map[string]*models.Builder),
		Stations: make(map[string]*models.GameMap),
		Builds:   make(map[string][]models.BuildRecord),
	}
}

// loadFromFile loads data from the JSON file
func (js *JSONStore) loadFromFile() error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	file, err := os.ReadFile(js.filePath)
	if err != nil {
		return err
	}

	data := newJSONData()
	if err := json.Unmarshal(file, data); err != nil {
		return err
	}
	// Files written by older versions may lack a section
	if data.Builders == nil {
		data.Builders = make(map[string]*models.Builder)
	}
	if data.Stations == nil {
		data.Stations = make(map[string]*models.GameMap)
	}
	if data.Builds == nil {
		data.Builds = make(map[string][]models.BuildRecord)
	}
	js.data = data
	return nil
}

// saveLocked writes the data to disk; the caller holds the write lock
func (js *JSONStore) saveLocked() error {
	data, err := json.MarshalIndent(js.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := js.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, js.filePath)
}

// SaveBuilder saves a builder to the store
func (js *JSONStore) SaveBuilder(builder *models.Builder) error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	stored := *builder
	js.data.Builders[builder.ID] = &stored
	return js.saveLocked()
}

// LoadBuilder loads a builder by ID
func (js *JSONStore) LoadBuilder(builderID string) (*models.Builder, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	builder, exists := js.data.Builders[builderID]
	if !exists {
		return nil, fmt.Errorf("builder with ID %s: %w", builderID, ErrNotFound)
	}

	loaded := *builder
	return &loaded, nil
}

// LoadBuilderByUsername loads a builder by username
func (js *JSONStore) LoadBuilderByUsername(username string) (*models.Builder, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	for _, builder := range js.data.Builders {
		if builder.Username == username {
			loaded := *builder
			return &loaded, nil
		}
	}

	return nil, fmt.Errorf("builder with username %s: %w", username, ErrNotFound)
}

// SaveStation saves a station snapshot to the store
func (js *JSONStore) SaveStation(name string, gameMap *models.GameMap) error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	js.data.Stations[name] = gameMap
	return js.saveLocked()
}

// LoadStation loads a station snapshot by name
func (js *JSONStore) LoadStation(name string) (*models.GameMap, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	station, exists := js.data.Stations[name]
	if !exists {
		return nil, fmt.Errorf("station with name %s: %w", name, ErrNotFound)
	}

	return station, nil
}

// AppendBuild adds a record to the end of a station's replay log
func (js *JSONStore) AppendBuild(station string, record models.BuildRecord) error {
	js.mutex.Lock()
	defer js.mutex.Unlock()

	js.data.Builds[station] = append(js.data.Builds[station], record)
	return js.saveLocked()
}

// LoadBuilds returns a station's replay log in append order
func (js *JSONStore) LoadBuilds(station string) ([]models.BuildRecord, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()

	records := make([]models.BuildRecord, len(js.data.Builds[station]))
	copy(records, js.data.Builds[station])
	return records, nil
}

// Close closes the store (no-op for JSON store)
func (js *JSONStore) Close() error {
	return nil
}

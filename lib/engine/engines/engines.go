package engines

import (
	"fmt"

	"github.com/ValentinKolb/scdb/lib/engine"
	"github.com/ValentinKolb/scdb/lib/engine/engines/leveldb"
	"github.com/ValentinKolb/scdb/lib/engine/engines/maple"
	"github.com/ValentinKolb/scdb/lib/engine/engines/sqlite"
)

// Factory returns the factory of the given engine implementation
func Factory(impl engine.Implementation) (engine.Factory, error) {
	switch impl {
	case engine.ImplMaple, "":
		return maple.Open, nil
	case engine.ImplSQLite:
		return sqlite.Open, nil
	case engine.ImplLevelDB:
		return leveldb.Open, nil
	default:
		return nil, fmt.Errorf("unknown engine %q, must be one of %v", impl, Available())
	}
}

// Open opens an engine of the given implementation, an empty implementation means maple
func Open(impl engine.Implementation, opts *engine.Options) (engine.Engine, error) {
	factory, err := Factory(impl)
	if err != nil {
		return nil, err
	}
	return factory(opts)
}

// Available returns the names of all engine implementations
func Available() []engine.Implementation {
	return []engine.Implementation{engine.ImplMaple, engine.ImplSQLite, engine.ImplLevelDB}
}

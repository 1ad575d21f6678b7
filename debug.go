package sparseheap

import "go.uber.org/zap"

// eventSink emits one structured debug event per public operation through
// a compiled-in-by-default sink. A nil *eventSink returns after one nil
// check per call; one built over zap.NewNop() still builds the field list
// but emits nothing.
type eventSink struct {
	logger   *zap.Logger
	category Category
}

// newEventSink wraps logger for category. A nil logger is replaced with a
// no-op logger so callers never need to nil-check the sink itself.
func newEventSink(logger *zap.Logger, category Category) *eventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventSink{logger: logger, category: category}
}

// debug emits one structured event for op with the given alternating
// key/value fields, tagged with the sink's memory-category.
func (s *eventSink) debug(op string, kv ...any) {
	if s == nil {
		return
	}
	fields := make([]zap.Field, 0, len(kv)/2+1)
	fields = append(fields, zap.String("category", string(s.category)))
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	s.logger.Debug("sparseheap."+op, fields...)
}

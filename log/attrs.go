package log

import "log/slog"

func Pipeline(name string) slog.Attr {
	return slog.String("pipeline", name)
}

func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

func StepName(name string) slog.Attr {
	return slog.String("step", name)
}

func StepIndex(i int) slog.Attr {
	return slog.Int("step_index", i)
}

func Key(key string) slog.Attr {
	return slog.String("key", key)
}

func Source(source string) slog.Attr {
	return slog.String("source", source)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

package logger

import (
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once sync.Once
	base = zap.NewNop()

	// Log é o logger açucarado usado por todo o serviço. Até Init ser chamado é um no-op.
	Log = base.Sugar()
)

// Options configura o logger do serviço.
type Options struct {
	AppName string
	Env     string
	LogPath string // vazio desabilita o arquivo rotativo
	Level   string
}

func DefaultOptions() Options {
	return Options{
		AppName: "AIScanService",
		Env:     "production",
		LogPath: "logs/app.log",
		Level:   "debug",
	}
}

func Init(opts Options) error {
	var initErr error
	once.Do(func() {
		level := zapcore.DebugLevel
		if opts.Level != "" {
			if err := level.Set(opts.Level); err != nil {
				initErr = err
				return
			}
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.CallerKey = "caller"
		encoderCfg.LevelKey = "level"
		encoderCfg.MessageKey = "message"

		consoleCfg := encoderCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

		cores := []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), level),
		}
		if opts.LogPath != "" {
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.LogPath,
				MaxSize:    50,
				MaxBackups: 7,
				MaxAge:     30,
				Compress:   true,
			})
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level))
		}

		base = zap.New(zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(
				zap.String("app", opts.AppName),
				zap.String("env", opts.Env),
			),
		)
		Log = base.Sugar()
	})
	return initErr
}

func GetLogger() *zap.Logger {
	return base
}

func Sync() {
	_ = base.Sync()
}

// Trace registra a duração de fn. Uso: defer logger.Trace("Fn", time.Now()).
func Trace(fn string, start time.Time) {
	Log.Debugf("%s executed in %d ms", fn, time.Since(start).Milliseconds())
}

func TraceAuto() func() {
	start := time.Now()
	pc, _, _, ok := runtime.Caller(1)
	funcName := "unknown"
	if ok {
		funcName = trimPackagePath(runtime.FuncForPC(pc).Name())
	}
	Log.Debugw("Início da função", "function", funcName)
	return func() {
		Log.Debugw("Fim da função", "function", funcName, "duration", time.Since(start).String())
	}
}

func trimPackagePath(fullName string) string {
	if idx := strings.LastIndex(fullName, "/"); idx != -1 {
		fullName = fullName[idx+1:]
	}
	if idx := strings.Index(fullName, "."); idx != -1 {
		return fullName[idx+1:]
	}
	return fullName
}

package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=8080"`

	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=50"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT,default=5s"`
	StorageRetryAttempts int           `env:"STORAGE_RETRY_ATTEMPTS,default=3"`
	StorageRetryDelay    time.Duration `env:"STORAGE_RETRY_DELAY,default=50ms"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=1m"`

	CensoredWords   string `env:"CENSORED_WORDS"`
	CensorCharacter string `env:"CENSOR_CHARACTER,default=*"`
}

// CensoredWordList splits the comma-separated word list, dropping blanks.
func (c Config) CensoredWordList() []string {
	var words []string
	for _, word := range strings.Split(c.CensoredWords, ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return words
}

// CensorRune enforces that the configured replacement is a single character.
func (c Config) CensorRune() (rune, error) {
	r := []rune(c.CensorCharacter)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSOR_CHARACTER must be a single character, got %q", c.CensorCharacter)
	}
	return r[0], nil
}

package config

import "github.com/joho/godotenv"

// LoadDotEnv reads .env style files into the process environment.
// Variables already set in the environment are not overridden.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

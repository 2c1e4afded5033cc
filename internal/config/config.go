package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"skill-assessment-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Reference ReferenceConfig `yaml:"reference"`
	Questions QuestionsConfig `yaml:"questions"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Quiz      QuizConfig      `yaml:"quiz"`
	Blend     BlendConfig     `yaml:"blend"`
	Matching  MatchingConfig  `yaml:"matching"`
}

// ReferenceConfig points at the mapping tables and job requirements.
type ReferenceConfig struct {
	Path     string `yaml:"path"`
	Workbook string `yaml:"workbook"`
}

// QuestionsConfig points at the question bank file used when Postgres is not configured.
type QuestionsConfig struct {
	Path string `yaml:"path"`
	TTL  string `yaml:"ttl"`
}

// ScoringConfig holds every constant of the evidence model.
type ScoringConfig struct {
	Grades         map[string]float64     `yaml:"grades"`
	MaxGradePoints float64                `yaml:"max_grade_points"`
	DecayRate      float64                `yaml:"decay_rate"`
	ConfidenceRate float64                `yaml:"confidence_rate"`
	CurrentYear    int                    `yaml:"current_year"`
	Levels         domain.LevelThresholds `yaml:"levels"`
}

// QuizConfig controls plan sizing and the per-level difficulty split.
type QuizConfig struct {
	QuestionsPerSkill int                             `yaml:"questions_per_skill"`
	MaxSkills         int                             `yaml:"max_skills"`
	Mixes             map[string]domain.DifficultyMix `yaml:"mixes"`
}

// BlendConfig holds the claimed/verified blend weights.
type BlendConfig struct {
	QuizWeight    float64 `yaml:"quiz_weight"`
	ClaimedWeight float64 `yaml:"claimed_weight"`
}

// MatchingConfig controls gap classification and the match percentage policy.
type MatchingConfig struct {
	Threshold         float64 `yaml:"threshold"`
	Policy            string  `yaml:"policy"`
	CoverageWeight    float64 `yaml:"coverage_weight"`
	ProficiencyWeight float64 `yaml:"proficiency_weight"`
}

// DefaultGrades is the 4.0 letter-grade scale.
func DefaultGrades() map[string]float64 {
	return map[string]float64{
		"A+": 4.0,
		"A":  4.0,
		"A-": 3.7,
		"B+": 3.3,
		"B":  3.0,
		"B-": 2.7,
		"C+": 2.3,
		"C":  2.0,
		"C-": 1.7,
		"D+": 1.3,
		"D":  1.0,
		"F":  0.0,
	}
}

// Default returns a configuration that runs fully in memory.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "10m"
	cfg.Log.Mode = "dev"
	cfg.Reference.Path = "config/reference.yaml"
	cfg.Questions.Path = "config/questions.yaml"
	cfg.Questions.TTL = "10m"
	cfg.Scoring = ScoringConfig{
		Grades:         DefaultGrades(),
		MaxGradePoints: 4.0,
		DecayRate:      0.4,
		ConfidenceRate: 0.25,
		CurrentYear:    4,
		Levels:         domain.DefaultLevelThresholds(),
	}
	cfg.Quiz = QuizConfig{
		QuestionsPerSkill: 5,
		MaxSkills:         5,
		Mixes: map[string]domain.DifficultyMix{
			string(domain.LevelAdvanced):     {Easy: 20, Medium: 30, Hard: 50},
			string(domain.LevelIntermediate): {Easy: 30, Medium: 50, Hard: 20},
			string(domain.LevelBeginner):     {Easy: 50, Medium: 40, Hard: 10},
		},
	}
	cfg.Blend = BlendConfig{QuizWeight: 0.7, ClaimedWeight: 0.3}
	cfg.Matching = MatchingConfig{
		Threshold:         70,
		Policy:            "weighted",
		CoverageWeight:    0.6,
		ProficiencyWeight: 0.4,
	}
	return cfg
}

// Load reads YAML config from path over the defaults, then applies SKILLS_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	// yaml.v3 merges into non-nil maps, so a configured grade scale or mix table
	// must replace the default one rather than extend it.
	cfg.Scoring.Grades = nil
	cfg.Quiz.Mixes = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Scoring.Grades == nil {
		cfg.Scoring.Grades = DefaultGrades()
	}
	if cfg.Quiz.Mixes == nil {
		cfg.Quiz.Mixes = Default().Quiz.Mixes
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Postgres.URL = envStr("SKILLS_POSTGRES_URL", cfg.Postgres.URL)
	cfg.Redis.Addr = envStr("SKILLS_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envStr("SKILLS_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("SKILLS_REDIS_DB", cfg.Redis.DB)
	cfg.Log.Mode = envStr("SKILLS_LOG_MODE", cfg.Log.Mode)
	cfg.Reference.Path = envStr("SKILLS_REFERENCE_PATH", cfg.Reference.Path)
	cfg.Questions.Path = envStr("SKILLS_QUESTIONS_PATH", cfg.Questions.Path)
}

var errInvalidConfig = errors.New("invalid config")

// Validate rejects configurations the scoring model cannot run with.
func (c Config) Validate() error {
	var problems []string
	if len(c.Scoring.Grades) == 0 {
		problems = append(problems, "scoring.grades is empty")
	}
	if c.Scoring.MaxGradePoints <= 0 {
		problems = append(problems, "scoring.max_grade_points must be positive")
	}
	for grade, points := range c.Scoring.Grades {
		if points < 0 || points > c.Scoring.MaxGradePoints {
			problems = append(problems, fmt.Sprintf("scoring.grades[%s]=%v outside 0..max_grade_points", grade, points))
		}
	}
	if c.Scoring.DecayRate < 0 {
		problems = append(problems, "scoring.decay_rate must not be negative")
	}
	if c.Scoring.ConfidenceRate <= 0 {
		problems = append(problems, "scoring.confidence_rate must be positive")
	}
	if c.Scoring.CurrentYear < 1 {
		problems = append(problems, "scoring.current_year must be at least 1")
	}
	if err := c.Scoring.Levels.Validate(); err != nil {
		problems = append(problems, "scoring.levels: "+err.Error())
	}
	if c.Quiz.QuestionsPerSkill < 1 {
		problems = append(problems, "quiz.questions_per_skill must be at least 1")
	}
	if c.Quiz.MaxSkills < 1 {
		problems = append(problems, "quiz.max_skills must be at least 1")
	}
	for level, mix := range c.Quiz.Mixes {
		switch domain.Level(level) {
		case domain.LevelBeginner, domain.LevelIntermediate, domain.LevelAdvanced:
		default:
			problems = append(problems, fmt.Sprintf("quiz.mixes has unknown level %q", level))
		}
		if mix.Easy < 0 || mix.Medium < 0 || mix.Hard < 0 || mix.Easy+mix.Medium+mix.Hard != 100 {
			problems = append(problems, fmt.Sprintf("quiz.mixes[%s] must be non-negative and sum to 100", level))
		}
	}
	if c.Blend.QuizWeight < 0 || c.Blend.ClaimedWeight < 0 || math.Abs(c.Blend.QuizWeight+c.Blend.ClaimedWeight-1) > 1e-9 {
		problems = append(problems, "blend weights must be non-negative and sum to 1")
	}
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 100 {
		problems = append(problems, "matching.threshold must be in (0,100]")
	}
	switch c.Matching.Policy {
	case "weighted", "coverage":
	default:
		problems = append(problems, fmt.Sprintf("matching.policy must be weighted or coverage, got %q", c.Matching.Policy))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

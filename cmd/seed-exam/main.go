package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/service"
)

// seedFile is the JSON layout accepted by seed-exam.
type seedFile struct {
	Exam      model.CreateExamRequest `json:"exam"`
	AuthorID  int                     `json:"author_id"`
	Questions []model.Question        `json:"questions"`
	Students  []int                   `json:"students"`
	Groups    []int                   `json:"groups"`
	Publish   bool                    `json:"publish"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "Path to the exam seed JSON (empty seeds a demo exam)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	seed := demoSeed()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to read seed file")
		}
		seed = seedFile{}
		if err := json.Unmarshal(raw, &seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse seed file")
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	settingService := service.NewSettingService(repository.NewSettingRepository(pool), rdb, log)
	examService := service.NewExamService(
		repository.NewExamRepository(pool),
		repository.NewQuestionRepository(pool),
		repository.NewExamTargetRuleRepository(pool),
		settingService, rdb, log,
	)

	req := seed.Exam
	exam := &model.Exam{
		Title:           req.Title,
		AuthorID:        seed.AuthorID,
		IsPublic:        req.IsPublic,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		DurationMinutes: req.DurationMinutes,
		PassMark:        req.PassMark,
		Settings:        req.Settings,
		GradeScale:      req.GradeScale,
	}
	if err := examService.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %q with ID: %s\n", exam.Title, exam.ID)

	for i := range seed.Questions {
		q := seed.Questions[i]
		q.ExamID = exam.ID
		if q.OrderNum == 0 {
			q.OrderNum = i + 1
		}
		if err := examService.AddQuestion(ctx, &q); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("Failed to add question")
		}
	}
	fmt.Printf("Added %d questions\n", len(seed.Questions))

	for _, id := range seed.Students {
		studentID := id
		if err := examService.AddTargetRule(ctx, &model.ExamTargetRule{ExamID: exam.ID, StudentID: &studentID}); err != nil {
			log.Fatal().Err(err).Int("student_id", id).Msg("Failed to add student target")
		}
	}
	for _, id := range seed.Groups {
		groupID := id
		if err := examService.AddTargetRule(ctx, &model.ExamTargetRule{ExamID: exam.ID, GroupID: &groupID}); err != nil {
			log.Fatal().Err(err).Int("group_id", id).Msg("Failed to add group target")
		}
	}

	if seed.Publish {
		if err := examService.Publish(ctx, exam.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish exam")
		}
		fmt.Println("Exam published and cached")
	}

	fmt.Println("\nSeed completed!")
}

// demoSeed is a short mixed exam assigned to the first ten student IDs.
func demoSeed() seedFile {
	opts := func(correct string, ids ...string) []model.Option {
		out := make([]model.Option, len(ids))
		for i, id := range ids {
			out[i] = model.Option{ID: id, Text: "Pilihan " + id, IsCorrect: id == correct}
		}
		return out
	}
	return seedFile{
		Exam: model.CreateExamRequest{
			Title:           "Ujian Demo Jaringan Dasar",
			DurationMinutes: 30,
			PassMark:        60,
			Settings: model.ExamSettings{
				MaxAttempts:        2,
				AllowRetake:        true,
				RandomizeQuestions: true,
				RandomizeOptions:   true,
				TabSwitchDetection: true,
				MaxTabSwitches:     5,
				ReviewTimeSeconds:  60,
			},
		},
		AuthorID: 1,
		Questions: []model.Question{
			{Type: model.QuestionTypeSingleChoice, Prompt: "Port default HTTP adalah?", Options: opts("b", "a", "b", "c", "d"), Marks: 2},
			{Type: model.QuestionTypeMultipleChoice, Prompt: "Mana yang termasuk protokol transport?", Options: []model.Option{
				{ID: "tcp", Text: "TCP", IsCorrect: true},
				{ID: "udp", Text: "UDP", IsCorrect: true},
				{ID: "ip", Text: "IP"},
				{ID: "arp", Text: "ARP"},
			}, Marks: 3},
			{Type: model.QuestionTypeTrueFalse, Prompt: "DNS menerjemahkan nama domain menjadi alamat IP.", Options: []model.Option{
				{ID: "true", Text: "Benar", IsCorrect: true},
				{ID: "false", Text: "Salah"},
			}, Marks: 1},
			{Type: model.QuestionTypeShortAnswer, Prompt: "Singkatan dari LAN?", AcceptedAnswers: []string{"local area network"}, Marks: 2},
			{Type: model.QuestionTypeEssay, Prompt: "Jelaskan perbedaan switch dan router.", Marks: 5},
		},
		Students: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		Publish:  true,
	}
}

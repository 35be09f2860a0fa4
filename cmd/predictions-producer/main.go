package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/kafka"
	"github.com/prediction-game/internal/pricefeed"
)

var botPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func botName(idx int) string {
	prefixIdx := idx % len(botPrefixes)
	suffix := idx/len(botPrefixes) + 1
	return fmt.Sprintf("%sBot%d", botPrefixes[prefixIdx], suffix)
}

// registerBots creates AI players through the API and returns their uids.
// Names that already exist are skipped, so re-runs reuse nothing and just
// shrink the fleet.
func registerBots(apiURL string, count int) []string {
	client := &http.Client{Timeout: 10 * time.Second}
	uids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		body, _ := json.Marshal(map[string]interface{}{
			"name":  botName(i),
			"is_ai": true,
		})

		resp, err := client.Post(apiURL+"/api/v1/players", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Printf("Failed to register %s: %v", botName(i), err)
			continue
		}

		var out struct {
			Success bool          `json:"success"`
			Data    domain.Player `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil || !out.Success {
			log.Printf("Registration rejected for %s (already exists?)", botName(i))
			continue
		}
		uids = append(uids, out.Data.UID)
	}
	return uids
}

// pickChoice turns recent candle momentum into a choice, with enough noise
// that the bots disagree and every round has all three camps populated.
func pickChoice(candles []pricefeed.Candle) domain.Choice {
	if len(candles) < 2 {
		return domain.Choices()[rand.Intn(3)]
	}

	prev := candles[len(candles)-2].Close
	last := candles[len(candles)-1].Close
	delta := (last - prev) / prev

	// Momentum shifts the odds, it never decides outright.
	r := rand.Float64()
	switch {
	case delta > 0.001:
		if r < 0.5 {
			return domain.ChoiceBullish
		}
	case delta < -0.001:
		if r < 0.5 {
			return domain.ChoiceBearish
		}
	default:
		if r < 0.4 {
			return domain.ChoiceNeutral
		}
	}
	return domain.Choices()[rand.Intn(3)]
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-predictions", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:8080", "Game API base URL for bot registration")
	feedURL := flag.String("feed", "https://api.binance.com", "Candle API base URL")
	symbol := flag.String("symbol", "BTCUSDT", "Market symbol")
	totalBots := flag.Int("bots", 20, "Number of AI players")
	interval := flag.Duration("interval", 30*time.Second, "Submission interval per sweep")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🤖 AI Prediction Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:    %s\n", *brokers)
	fmt.Printf("  Topic:      %s\n", *topic)
	fmt.Printf("  Symbol:     %s\n", *symbol)
	fmt.Printf("  Bots:       %d\n", *totalBots)
	fmt.Printf("  Interval:   %s\n", *interval)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Register the bot fleet through the API
	fmt.Printf("Registering %d bots...\n", *totalBots)
	uids := registerBots(*apiURL, *totalBots)
	if len(uids) == 0 {
		log.Fatal("No bots registered, nothing to do")
	}
	fmt.Printf("✓ Registered %d bots\n\n", len(uids))

	// Candle client for the momentum heuristic
	feed := pricefeed.NewClient(&config.PriceFeedConfig{
		BaseURL:     *feedURL,
		Symbol:      *symbol,
		Interval:    "1h",
		HTTPTimeout: 10 * time.Second,
	})

	// Configure Sarama producer
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForLocal
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, producerConfig)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendMessage := func(msg kafka.PredictionMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		pm := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.PlayerUID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- pm:
		case <-done:
			return
		}
	}

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		candles, err := feed.Candles(ctx, time.Now().Add(-6*time.Hour), 6)
		if err != nil {
			log.Printf("Failed to fetch candles, skipping sweep: %v", err)
			return
		}

		for _, uid := range uids {
			// RoundID zero targets whatever round is open right now.
			sendMessage(kafka.PredictionMessage{
				PlayerUID: uid,
				Choice:    pickChoice(candles),
			})
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sweep()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}
			sweep()

		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

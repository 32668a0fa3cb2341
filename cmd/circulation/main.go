package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"library-circulation/pkg/apperrors"
	"library-circulation/pkg/circulation"
	"library-circulation/pkg/database"
	"library-circulation/pkg/membership"
	"library-circulation/pkg/models"
	"library-circulation/pkg/notifications"
	"library-circulation/pkg/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	db     *gorm.DB
	engine *circulation.Engine
)

func main() {
	log.Println("Starting circulation service...")

	db = database.InitCirculationDB()
	seedTestData()

	dispatcher := notifications.NewDispatcher(notifications.LogSender{})
	dispatcher.Start(5 * time.Second)

	var members circulation.MembershipStatusProvider
	if url := os.Getenv("MEMBERSHIP_SERVICE_URL"); url != "" {
		members = membership.NewHTTPProvider(url)
	} else {
		members = &membership.StaticProvider{Default: true}
	}

	dailyRate := 1.0
	if v := os.Getenv("FINE_DAILY_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			dailyRate = rate
		}
	}

	engine = circulation.NewEngine(db, dispatcher, members, dailyRate)

	sweeper := scheduler.New(engine, time.Minute, 7*24*time.Hour)
	sweeper.Start()

	server := gin.Default()
	server.POST("/api/v1/loans", makeLoanHandler)
	server.POST("/api/v1/loans/:loanUid/return", returnLoanHandler)
	server.POST("/api/v1/loans/:loanUid/extend", extendLoanHandler)
	server.GET("/api/v1/loans/overdue", listOverdueLoansHandler)
	server.POST("/api/v1/reservations", createReservationHandler)
	server.DELETE("/api/v1/reservations/:reservationUid", cancelReservationHandler)
	server.POST("/api/v1/reservations/:reservationUid/pick", pickReservationHandler)
	server.GET("/api/v1/reservations", listUserReservationsHandler)
	server.GET("/api/v1/books/:bookUid/queue", listQueueHandler)
	server.POST("/api/v1/fines/:fineUid/pay", payFineHandler)
	server.GET("/manage/health", healthCheck)

	log.Println("Circulation service starting on :8080")
	if err := server.Run(":8080"); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func makeLoanHandler(c *gin.Context) {
	username := c.GetHeader("X-User-Name")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-Name header is required"})
		return
	}
	var request struct {
		BookUid string `json:"bookUid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	loan, err := engine.Loans.MakeLoan(request.BookUid, username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(loan))
}

func returnLoanHandler(c *gin.Context) {
	loanUid := c.Param("loanUid")
	loan, err := engine.Loans.ReturnBook(loanUid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(loan))
}

func extendLoanHandler(c *gin.Context) {
	loanUid := c.Param("loanUid")
	loan, err := engine.Loans.ExtendLoan(loanUid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(loan))
}

func listOverdueLoansHandler(c *gin.Context) {
	loans, err := engine.Loans.GetOverdueLoans()
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(loans))
	for i, loan := range loans {
		items[i] = loanJSON(loan)
	}
	c.JSON(http.StatusOK, items)
}

func createReservationHandler(c *gin.Context) {
	username := c.GetHeader("X-User-Name")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-Name header is required"})
		return
	}
	var request struct {
		BookUid string `json:"bookUid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	reservation, err := engine.Reservations.CreateReservation(request.BookUid, username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservationJSON(reservation))
}

func cancelReservationHandler(c *gin.Context) {
	username := c.GetHeader("X-User-Name")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-Name header is required"})
		return
	}
	reservationUid := c.Param("reservationUid")

	if err := engine.Reservations.CancelReservation(reservationUid, username); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pickReservationHandler(c *gin.Context) {
	username := c.GetHeader("X-User-Name")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-Name header is required"})
		return
	}
	reservationUid := c.Param("reservationUid")

	loan, err := engine.Reservations.PickReservation(reservationUid, username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(loan))
}

func listUserReservationsHandler(c *gin.Context) {
	username := c.GetHeader("X-User-Name")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-Name header is required"})
		return
	}

	reservations, err := engine.Reservations.ListReservationsForUser(username)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(reservations))
	for i, res := range reservations {
		items[i] = reservationJSON(res)
	}
	c.JSON(http.StatusOK, items)
}

func listQueueHandler(c *gin.Context) {
	bookUid := c.Param("bookUid")
	queue, err := engine.Reservations.ListQueueForBook(bookUid)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(queue))
	for i, res := range queue {
		items[i] = gin.H{
			"reservationUid": res.ReservationUid,
			"username":       res.Username,
			"queuePosition":  res.QueuePosition,
			"reservedAt":     res.ReservedAt.Format("2006-01-02"),
		}
	}
	c.JSON(http.StatusOK, items)
}

func payFineHandler(c *gin.Context) {
	fineUid := c.Param("fineUid")
	fine, err := engine.Fees.MarkFinePaid(fineUid, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fineUid":  fine.FineUid,
		"status":   fine.Status,
		"amount":   fine.Amount,
		"fineType": fine.FineType,
		"paidDate": fine.PaidDate.Format("2006-01-02"),
	})
}

// respondError maps engine errors to responses: domain violations become
// client errors carrying their code, anything else is logged in full and
// surfaced generically.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.JSON(status, body)
}

func loanJSON(loan models.Loan) gin.H {
	item := gin.H{
		"loanUid":  loan.LoanUid,
		"bookUid":  loan.BookUid,
		"username": loan.Username,
		"status":   loan.Status,
		"loanDate": loan.LoanDate.Format("2006-01-02"),
		"dueDate":  loan.DueDate.Format("2006-01-02"),
	}
	if loan.ReturnDate != nil {
		item["returnDate"] = loan.ReturnDate.Format("2006-01-02")
	}
	if loan.LateFee != nil {
		item["lateFee"] = *loan.LateFee
	}
	return item
}

func reservationJSON(res models.Reservation) gin.H {
	item := gin.H{
		"reservationUid": res.ReservationUid,
		"bookUid":        res.BookUid,
		"username":       res.Username,
		"status":         res.Status,
		"queuePosition":  res.QueuePosition,
		"reservedAt":     res.ReservedAt.Format("2006-01-02"),
	}
	if res.PickupDeadline != nil {
		item["pickupDeadline"] = res.PickupDeadline.Format("2006-01-02")
	}
	return item
}

func seedTestData() {
	testBookUid := "f7cdc58f-2caf-4b15-9727-f89dcc629b27"

	var testBook models.Book
	if err := db.Where("book_uid = ?", testBookUid).First(&testBook).Error; err != nil {
		testBook = models.Book{
			BookUid:   testBookUid,
			Name:      "Краткий курс C++ в 7 томах",
			Author:    "Бьерн Страуструп",
			Genre:     "Научная фантастика",
			Condition: "EXCELLENT",
		}
		if err := db.Create(&testBook).Error; err != nil {
			log.Printf("Failed to create test book: %v", err)
		} else {
			log.Printf("Created test book: %s", testBook.Name)
		}
	}

	books := []models.Book{
		{Name: "The Go Programming Language", Author: "Donovan, Kernighan", Genre: "Programming"},
		{Name: "Designing Data-Intensive Applications", Author: "Martin Kleppmann", Genre: "Databases"},
	}
	for _, book := range books {
		var existing models.Book
		if err := db.Where("name = ?", book.Name).First(&existing).Error; err != nil {
			book.BookUid = uuid.New().String()
			if err := db.Create(&book).Error; err != nil {
				log.Printf("Failed to create book %s: %v", book.Name, err)
			}
		}
	}
	log.Println("Circulation test data seeded")
}

func healthCheck(ctx *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Host localhost:8080 is active",
	})
}

package service

import (
	"github.com/noah-isme/krs-api/internal/models"
	appErrors "github.com/noah-isme/krs-api/pkg/errors"
)

// evaluateQuota rejects the registration when the student's active credits
// plus the course weight would pass the cap.
func evaluateQuota(student *models.Student, consumed int, course *models.Course) error {
	total := consumed + course.Credits
	if total > student.MaxCredits {
		return appErrors.CreditCapExceeded(total, student.MaxCredits)
	}
	return nil
}

// evaluateCapacity rejects the registration when one more seat would pass
// the course capacity.
func evaluateCapacity(course *models.Course, seats int) error {
	if seats+1 > course.Capacity {
		return appErrors.CapacityExceeded(seats, course.Capacity)
	}
	return nil
}

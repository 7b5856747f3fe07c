package utils

import (
	"math/rand/v2"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/objective"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.IntN(len(commonSurnames))]
	nameLength := rand.IntN(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.IntN(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

// GenerateUsernameFromChineseName 取每个字拼音的随机前缀，再拼接 1~3 位数字
func GenerateUsernameFromChineseName(chineseName string) string {
	username := ""

	for _, py := range pinyin.LazyConvert(chineseName, nil) {
		length := rand.IntN(len(py)) + 1
		username += py[:length]
	}

	digitsLength := rand.IntN(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.IntN(len(digits))])
	}

	return username
}

// GenerateRandomUser 生成的用户都是研究员
func GenerateRandomUser(password string, emailDomainName string) (*domain.User, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         domain.RoleResearcher,
	}

	return user, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	randomPassword := make([]rune, length)
	for i := range randomPassword {
		randomPassword[i] = letters[rand.IntN(len(letters))]
	}
	return string(randomPassword)
}

func GenerateRandomID(letterLength int, digitLength int) string {
	randomID := make([]rune, letterLength+digitLength)
	for i := range randomID {
		if i < letterLength {
			randomID[i] = letters[rand.IntN(26)]
		} else {
			randomID[i] = rune(digits[rand.IntN(len(digits))])
		}
	}
	return string(randomID)
}

var (
	crossoverStrategies = []optimizer.CrossoverStrategy{optimizer.CrossoverBlend, optimizer.CrossoverSinglePoint}
	mutationStrategies  = []optimizer.MutationStrategy{optimizer.MutationOffset, optimizer.MutationBitFlip}
)

// GenerateRandomRun 随机选一个内置目标函数，生成一组合法的参数
func GenerateRandomRun(userID int64) *domain.OptimizationRun {
	objectives := objective.All()
	o := objectives[rand.IntN(len(objectives))]

	numParams := rand.IntN(10) + 2
	lower, upper := o.Bounds(numParams)
	popSize := 2 * (rand.IntN(50) + 10)

	params := optimizer.Parameters{
		NumParams:         numParams,
		LowerLim:          lower,
		UpperLim:          upper,
		PopulationSize:    popSize,
		MaxGenerations:    rand.IntN(200) + 50,
		CrossoverRate:     0.5 + rand.Float64()*0.4,
		MutationRate:      0.1 + rand.Float64()*0.3,
		TournamentSize:    rand.IntN(4) + 2,
		MutationGenes:     rand.IntN(numParams) + 1,
		EliteWidth:        popSize / 2,
		Integer:           o.Integer,
		CrossoverStrategy: crossoverStrategies[rand.IntN(len(crossoverStrategies))],
		MutationStrategy:  mutationStrategies[rand.IntN(len(mutationStrategies))],
	}

	return &domain.OptimizationRun{
		UserID:     userID,
		Name:       o.Name + "-" + GenerateRandomID(3, 3),
		Objective:  o.Name,
		Goal:       string(o.Goal),
		Parameters: params,
	}
}
